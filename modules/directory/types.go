package directory

// Service names.
const (
	ServiceResolveDisplayName  = "resolve-display-name"
	ServiceResolveDisplayNames = "resolve-display-names"
	ServiceUpdateProfile       = "update-profile"
)

// ResolveDisplayNameRequest is the request for one display name.
type ResolveDisplayNameRequest struct {
	UserID string `json:"user_id"`
}

// ResolveDisplayNameResponse is the response for one display name.
type ResolveDisplayNameResponse struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
}

// ResolveDisplayNamesRequest is the request for several display names.
type ResolveDisplayNamesRequest struct {
	UserIDs []string `json:"user_ids"`
}

// ResolveDisplayNamesResponse maps user ids onto display names.
type ResolveDisplayNamesResponse struct {
	DisplayNames map[string]string `json:"display_names"`
}

// UpdateProfileRequest is the request for changing a display name.
type UpdateProfileRequest struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
}

// UpdateProfileResponse is the response for changing a display name.
type UpdateProfileResponse struct {
	Profile *Profile `json:"profile"`
}
