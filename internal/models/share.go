package models

// ShareItem is an operating-system share payload handed into the app. Data is
// either inline text or a URI pointing at local content; Items is set for the
// platform's "share multiple" shape and may nest.
type ShareItem struct {
	MimeType string      `json:"mime_type"`
	Data     string      `json:"data"`
	Items    []ShareItem `json:"items,omitempty"`
}
