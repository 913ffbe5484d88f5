package spotify

import (
	"fmt"

	"github.com/zmb3/spotify/v2"
)

// Normalize converts a currently-playing response into a CurrentTrack.
//
// A nil or empty response (what a 204 decodes to) yields {IsPlaying:false}
// with no track. Any other response yields a snapshot, with placeholders for
// whatever the item lacks or for a null item.
func Normalize(cp *spotify.CurrentlyPlaying) *CurrentTrack {
	if isEmpty(cp) {
		return &CurrentTrack{IsPlaying: false}
	}

	snap := &TrackSnapshot{
		Title:      UnknownTitle,
		Artist:     UnknownArtist,
		Album:      UnknownAlbum,
		ProgressMs: int(cp.Progress),
	}

	if item := cp.Item; item != nil {
		if item.Name != "" {
			snap.Title = item.Name
		}
		if len(item.Artists) > 0 && item.Artists[0].Name != "" {
			snap.Artist = item.Artists[0].Name
		}
		if item.Album.Name != "" {
			snap.Album = item.Album.Name
		}
		if len(item.Album.Images) > 0 {
			snap.AlbumArtURL = item.Album.Images[0].URL
		}
		snap.DurationMs = int(item.Duration)
	}

	return &CurrentTrack{IsPlaying: cp.Playing, Track: snap}
}

func isEmpty(cp *spotify.CurrentlyPlaying) bool {
	if cp == nil {
		return true
	}
	return cp.Timestamp == 0 && cp.Item == nil && !cp.Playing && cp.Progress == 0 &&
		cp.PlaybackContext.URI == "" && cp.PlaybackContext.Type == ""
}

// ProgressPercent returns how far through the track playback is, in percent.
// It is 0 for a nil snapshot or unknown duration and never exceeds 100.
func ProgressPercent(s *TrackSnapshot) float64 {
	if s == nil || s.DurationMs <= 0 || s.ProgressMs <= 0 {
		return 0
	}
	pct := float64(s.ProgressMs) / float64(s.DurationMs) * 100
	if pct > 100 {
		return 100
	}
	return pct
}

// FormatDuration formats milliseconds as m:ss.
func FormatDuration(ms int) string {
	if ms < 0 {
		ms = 0
	}
	total := ms / 1000
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
