package document

import "strings"

const (
	contentScheme = "mxc://"
	downloadPath  = "/_matrix/media/v3/download/"
)

// AvatarURL derives the HTTP download URL of a content reference
// (mxc://<server>/<media>) on homeserver. A malformed reference yields "".
func AvatarURL(homeserver, ref string) string {
	rest, ok := strings.CutPrefix(ref, contentScheme)
	if !ok {
		return ""
	}
	server, media, ok := strings.Cut(rest, "/")
	if !ok || server == "" || media == "" || strings.Contains(media, "/") {
		return ""
	}
	if homeserver == "" {
		return ""
	}
	return strings.TrimRight(homeserver, "/") + downloadPath + server + "/" + media
}
