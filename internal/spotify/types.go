package spotify

// Placeholders used when the provider omits a field.
const (
	UnknownTitle  = "Unknown"
	UnknownArtist = "Unknown Artist"
	UnknownAlbum  = "Unknown Album"
)

// TrackSnapshot is the normalized view of the playing item. It is never persisted.
type TrackSnapshot struct {
	Title       string `json:"title"`
	Artist      string `json:"artist"`
	Album       string `json:"album"`
	AlbumArtURL string `json:"albumArt"` // empty when the album has no images
	DurationMs  int    `json:"duration"`
	ProgressMs  int    `json:"progress"`
}

// CurrentTrack is the result of a currently-playing fetch.
// Track is nil when nothing is playing.
type CurrentTrack struct {
	IsPlaying bool           `json:"isPlaying"`
	Track     *TrackSnapshot `json:"track,omitempty"`
}

// NotPlaying reports whether the provider had no item to show.
func (c *CurrentTrack) NotPlaying() bool {
	return c == nil || c.Track == nil
}
