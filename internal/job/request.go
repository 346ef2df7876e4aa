package job

import (
	"fmt"
	"sort"
	"strings"
)

// Format selects what the backend extracts.
type Format string

// Supported formats.
const (
	FormatVideo    Format = "video"
	FormatAudioMP3 Format = "audio_mp3"
	FormatAudioWAV Format = "audio_wav"
	FormatMetadata Format = "metadata"
)

// Formats lists every format in presentation order.
var Formats = []Format{FormatVideo, FormatAudioMP3, FormatAudioWAV, FormatMetadata}

// ParseFormat validates a format name.
func ParseFormat(raw string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range Formats {
		if f == known {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown format %q", raw)
}

// Advanced option keys accepted by the backend.
const (
	OptionCookies        = "cookies"
	OptionProxy          = "proxy"
	OptionOutputTemplate = "output_template"
)

var allowedOptions = map[string]struct{}{
	OptionCookies:        {},
	OptionProxy:          {},
	OptionOutputTemplate: {},
}

// AdvancedOptions maps option keys to values. Empty values are never sent.
type AdvancedOptions map[string]string

// Compact returns a copy without blank values, or nil when nothing remains.
func (o AdvancedOptions) Compact() AdvancedOptions {
	var out AdvancedOptions
	for k, v := range o {
		if strings.TrimSpace(v) == "" {
			continue
		}
		if out == nil {
			out = AdvancedOptions{}
		}
		out[k] = v
	}
	return out
}

// UnknownKeys returns option keys outside the accepted set, sorted.
func (o AdvancedOptions) UnknownKeys() []string {
	var bad []string
	for k := range o {
		if _, ok := allowedOptions[k]; !ok {
			bad = append(bad, k)
		}
	}
	sort.Strings(bad)
	return bad
}

// Request carries the submission fields of a job.
type Request struct {
	URL              string          `json:"url"`
	Format           Format          `json:"format"`
	IncludeSubtitles bool            `json:"include_subtitles"`
	AdvancedOptions  AdvancedOptions `json:"advanced_options,omitempty"`
}

// Normalized returns the request as it goes on the wire: trimmed URL, default
// format, and blank advanced options dropped.
func (r Request) Normalized() Request {
	out := r
	out.URL = strings.TrimSpace(r.URL)
	if out.Format == "" {
		out.Format = FormatVideo
	}
	out.AdvancedOptions = r.AdvancedOptions.Compact()
	return out
}

// Clone returns a deep copy.
func (r Request) Clone() Request {
	out := r
	if r.AdvancedOptions != nil {
		out.AdvancedOptions = make(AdvancedOptions, len(r.AdvancedOptions))
		for k, v := range r.AdvancedOptions {
			out.AdvancedOptions[k] = v
		}
	}
	return out
}
