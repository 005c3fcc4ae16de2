package notify

import (
	"encoding/json"
	"fmt"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/slack-go/slack"

	"github.com/lindol-ph/lindol/internal/scraper"
)

// Escalation markers prepended to the profile emoji for watched areas.
const (
	watchMarker  = "⚠️"
	strongMarker = "🚨"
)

// BuildPayload constructs the webhook message for one record. The
// severity profile is selected by the magnitude's integer part; a
// magnitude with no configured profile is an error.
func BuildPayload(cfg Config, rec *scraper.Record) (*slack.WebhookMessage, error) {
	profile, ok := cfg.Profiles[int(rec.Magnitude)]
	if !ok {
		return nil, fmt.Errorf("no severity profile for magnitude %d", int(rec.Magnitude))
	}

	emoji := profile.Emoji
	if marker := cfg.escalationMarker(rec); marker != "" {
		emoji = marker + " " + emoji
	}

	magnitude := strconv.FormatFloat(rec.Magnitude, 'f', -1, 64)
	place := rec.Location
	if rec.Province != "" {
		place = fmt.Sprintf("%s (%s)", rec.Location, rec.Province)
	}

	attachment := slack.Attachment{
		Color: profile.Color,
		Title: place,
		Text:  profile.Impact,
		Fields: []slack.AttachmentField{
			{Title: "Magnitude", Value: magnitude, Short: true},
			{Title: "Depth", Value: fmt.Sprintf("%dkm", rec.Depth), Short: true},
			{Title: "Map", Value: mapLink(rec), Short: false},
			{Title: "Details", Value: rec.Link, Short: false},
		},
		ImageURL: imageLink(cfg.ImageBaseURL, rec.Img),
		Ts:       json.Number(strconv.FormatInt(rec.Event.Unix(), 10)),
	}

	return &slack.WebhookMessage{
		Text:        fmt.Sprintf("%s Magnitude %s %s — %s", emoji, magnitude, profile.Label, place),
		Channel:     cfg.Channel,
		Username:    cfg.Username,
		Attachments: []slack.Attachment{attachment},
	}, nil
}

// escalationMarker returns the marker for records in a watched area:
// the strong marker when the magnitude also exceeds the watch
// threshold, the plain marker otherwise, empty when unwatched.
func (c Config) escalationMarker(rec *scraper.Record) string {
	if c.WatchSubstring == "" {
		return ""
	}
	haystack := strings.ToLower(rec.Location + " " + rec.Province)
	if !strings.Contains(haystack, strings.ToLower(c.WatchSubstring)) {
		return ""
	}
	if rec.Magnitude > c.WatchThreshold {
		return strongMarker
	}
	return watchMarker
}

func mapLink(rec *scraper.Record) string {
	return fmt.Sprintf("https://www.google.com/maps?q=%s,%s",
		strconv.FormatFloat(rec.Latitude, 'f', -1, 64),
		strconv.FormatFloat(rec.Longitude, 'f', -1, 64),
	)
}

// imageLink rewrites the source image URL to the configured
// image-serving base joined with the cached filename.
func imageLink(base, imgURL string) string {
	u, err := url.Parse(imgURL)
	if err != nil {
		return ""
	}
	return strings.TrimRight(base, "/") + "/" + path.Base(u.Path)
}
