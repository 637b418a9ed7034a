package content

import (
	"strings"

	"github.com/orgball2608/content-publisher/internal/domain"
	"github.com/samber/lo"
)

// Sets are persisted as comma-delimited text. This file is the only place
// that knows about the encoding.

const setSeparator = ","

func encodeSet(values []string) string {
	cleaned := lo.FilterMap(values, func(v string, _ int) (string, bool) {
		v = strings.TrimSpace(strings.ReplaceAll(v, setSeparator, ""))
		return v, v != ""
	})
	return strings.Join(lo.Uniq(cleaned), setSeparator)
}

func decodeSet(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	return lo.FilterMap(strings.Split(raw, setSeparator), func(v string, _ int) (string, bool) {
		v = strings.TrimSpace(v)
		return v, v != ""
	})
}

func encodePlatforms(platforms []domain.Platform) string {
	return encodeSet(lo.Map(platforms, func(p domain.Platform, _ int) string {
		return string(p)
	}))
}

func decodePlatforms(raw string) []domain.Platform {
	return domain.ParsePlatforms(decodeSet(raw))
}
