package content

import (
	"testing"

	"github.com/orgball2608/content-publisher/internal/domain"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeSet(t *testing.T) {
	require.Equal(t, "launch,summer,go", encodeSet([]string{" launch", "", "summer", "launch", "g,o"}))
	require.Equal(t, "", encodeSet(nil))

	require.Equal(t, []string{"launch", "summer"}, decodeSet("launch, ,summer,"))
	require.Nil(t, decodeSet("  "))
}

func TestDecodePlatforms(t *testing.T) {
	require.Equal(t,
		[]domain.Platform{domain.PlatformTelegram, domain.PlatformInstagram},
		decodePlatforms("telegram, INSTAGRAM,,TELEGRAM "),
	)
	require.Equal(t, "TELEGRAM,INSTAGRAM",
		encodePlatforms([]domain.Platform{domain.PlatformTelegram, domain.PlatformInstagram}))
}
