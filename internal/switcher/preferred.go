package switcher

import (
	"slices"

	"github.com/oszuidwest/zwfm-audioswitch/internal/audio"
	"github.com/oszuidwest/zwfm-audioswitch/internal/util"
)

// PreferredKinds parses a device preference list. Unknown names are an
// error, duplicates are dropped and kinds not named are appended in default
// order, so the result always ranks every kind.
func PreferredKinds(names []string) ([]audio.Kind, error) {
	out := make([]audio.Kind, 0, len(audio.DefaultPriority))
	for _, name := range names {
		k, err := audio.ParseKind(name)
		if err != nil {
			return nil, util.WrapError("parse preferred devices", err)
		}
		if !slices.Contains(out, k) {
			out = append(out, k)
		}
	}
	for _, k := range audio.DefaultPriority {
		if !slices.Contains(out, k) {
			out = append(out, k)
		}
	}
	return out, nil
}
