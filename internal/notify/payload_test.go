package notify

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lindol-ph/lindol/internal/scraper"
)

func testProfiles() map[int]Profile {
	return map[int]Profile{
		2: {Emoji: "🙂", Color: "#439FE0", Label: "Minor", Impact: "Rarely felt."},
		3: {Emoji: "😐", Color: "good", Label: "Light", Impact: "Often felt."},
		4: {Emoji: "😮", Color: "warning", Label: "Moderate", Impact: "Noticeable shaking."},
		6: {Emoji: "😱", Color: "danger", Label: "Strong", Impact: "Damage possible."},
	}
}

func payloadConfig() Config {
	return Config{
		Window:       6 * time.Hour,
		Threshold:    2,
		Profiles:     testProfiles(),
		ImageBaseURL: "https://lindol.example/img",
		Channel:      "#quakes",
		Username:     "lindol",
	}
}

func sampleRecord() *scraper.Record {
	return &scraper.Record{
		ID:        7,
		Event:     time.Date(2019, time.February, 14, 1, 34, 0, 0, time.UTC),
		Latitude:  12.84,
		Longitude: 124.34,
		Depth:     10,
		Magnitude: 2.8,
		Location:  "018 km S 42° E of Barcelona",
		Province:  "SORSOGON",
		Link:      "https://origin.example/2019_0214_0134.html",
		Img:       "https://origin.example/2019_0214_0134.jpg",
	}
}

func TestBuildPayloadFieldLayout(t *testing.T) {
	t.Parallel()

	msg, err := BuildPayload(payloadConfig(), sampleRecord())
	require.NoError(t, err)

	require.Equal(t, "#quakes", msg.Channel)
	require.Equal(t, "lindol", msg.Username)
	require.Contains(t, msg.Text, "Magnitude 2.8 Minor")
	require.Contains(t, msg.Text, "(SORSOGON)")

	require.Len(t, msg.Attachments, 1)
	att := msg.Attachments[0]
	require.Equal(t, "#439FE0", att.Color)
	require.Equal(t, "018 km S 42° E of Barcelona (SORSOGON)", att.Title)

	require.Len(t, att.Fields, 4)
	require.Equal(t, "Magnitude", att.Fields[0].Title)
	require.Equal(t, "2.8", att.Fields[0].Value)
	require.Equal(t, "10km", att.Fields[1].Value)
	require.Equal(t, "https://www.google.com/maps?q=12.84,124.34", att.Fields[2].Value)
	require.Equal(t, "https://origin.example/2019_0214_0134.html", att.Fields[3].Value)

	require.Equal(t, "https://lindol.example/img/2019_0214_0134.jpg", att.ImageURL)
	require.Equal(t, json.Number("1550108040"), att.Ts)
}

func TestBuildPayloadWholeMagnitudeHasNoTrailingZero(t *testing.T) {
	t.Parallel()

	rec := sampleRecord()
	rec.Magnitude = 4.0
	msg, err := BuildPayload(payloadConfig(), rec)
	require.NoError(t, err)
	require.Equal(t, "4", msg.Attachments[0].Fields[0].Value)
}

func TestBuildPayloadUnmappedMagnitudeFails(t *testing.T) {
	t.Parallel()

	rec := sampleRecord()
	rec.Magnitude = 5.2
	_, err := BuildPayload(payloadConfig(), rec)
	require.Error(t, err)
}

func TestBuildPayloadEscalationMarkers(t *testing.T) {
	t.Parallel()

	cfg := payloadConfig()
	cfg.WatchSubstring = "sorsogon"
	cfg.WatchThreshold = 6

	msg, err := BuildPayload(cfg, sampleRecord())
	require.NoError(t, err)
	require.Contains(t, msg.Text, watchMarker)
	require.NotContains(t, msg.Text, strongMarker)

	strong := sampleRecord()
	strong.Magnitude = 6.4
	msg, err = BuildPayload(cfg, strong)
	require.NoError(t, err)
	require.Contains(t, msg.Text, strongMarker)

	elsewhere := sampleRecord()
	elsewhere.Province = "SARANGANI"
	elsewhere.Location = "010 km S of Glan"
	msg, err = BuildPayload(cfg, elsewhere)
	require.NoError(t, err)
	require.NotContains(t, msg.Text, watchMarker)
	require.NotContains(t, msg.Text, strongMarker)
}

func TestImageLinkRebasesToCachedName(t *testing.T) {
	t.Parallel()

	got := imageLink("https://lindol.example/img/", "https://origin.example/deep/path/2019_0214.jpg")
	if got != "https://lindol.example/img/2019_0214.jpg" {
		t.Fatalf("imageLink = %q", got)
	}
}
