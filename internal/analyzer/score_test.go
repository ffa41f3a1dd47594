package analyzer

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

const modernPage = `<!doctype html>
<html lang="fr">
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <meta name="description" content="Boulangerie artisanale à Ixelles">
  <meta property="og:title" content="Boulangerie Dupont">
  <link rel="icon" href="/favicon.svg">
</head>
<body>
  <img src="/pain.jpg" alt="Pain au levain">
  <footer>© 2025 Boulangerie Dupont</footer>
</body>
</html>`

func legacyPage() string {
	var b strings.Builder
	b.WriteString(`<html><head><title>Garage</title></head><body><center><font size="4">Bienvenue</font></center>`)
	for i := 0; i < 25; i++ {
		fmt.Fprintf(&b, `<span style="color:red">%d</span>`, i)
	}
	b.WriteString(`<img src="a.gif"><img src="b.gif"><marquee>Promo</marquee><p>Copyright 2011</p></body></html>`)
	return b.String()
}

func TestScoreModernPageIsGood(t *testing.T) {
	t.Parallel()

	b := Score(Page{HTML: modernPage, HTTPS: true, LoadTime: 800 * time.Millisecond, Now: now})
	require.Less(t, b.Score, GoodWebsiteThreshold)
	require.Empty(t, b.Issues)
	require.Len(t, b.Checks, 10)
}

func TestScoreLegacyPageIsBad(t *testing.T) {
	t.Parallel()

	b := Score(Page{HTML: legacyPage(), HTTPS: false, LoadTime: 5 * time.Second, Now: now})
	require.GreaterOrEqual(t, b.Score, 70)
	require.LessOrEqual(t, b.Score, 100)
	require.Contains(t, b.Issues, "Outdated copyright year (2011)")
	require.Contains(t, b.Issues, "Uses deprecated HTML tags: <font>, <center>, <marquee>")
	require.Contains(t, b.Issues, "Heavy use of inline styles (25 elements)")
	require.Contains(t, b.Issues, "Slow load time (5.0s)")
}

func TestScoreEmptyPageIsBounded(t *testing.T) {
	t.Parallel()

	b := Score(Page{Now: now})
	require.GreaterOrEqual(t, b.Score, 0)
	require.LessOrEqual(t, b.Score, 100)
	require.Contains(t, b.Issues, "No copyright year found")
}

func TestScoreFallbackFailsHTTPS(t *testing.T) {
	t.Parallel()

	b := Score(Page{HTML: modernPage, HTTPS: true, FellBack: true, Now: now})
	require.Equal(t, WeightHTTPS, b.Score)
	require.Equal(t, []string{"HTTPS unavailable, site only reachable over plain HTTP"}, b.Issues)
}

func TestWeightsSumToHundred(t *testing.T) {
	t.Parallel()

	b := Score(Page{Now: now})
	sum := 0
	for _, c := range b.Checks {
		sum += c.Weight
	}
	require.Equal(t, 100, sum)
}

func TestCopyrightRange(t *testing.T) {
	t.Parallel()

	b := Score(Page{HTML: `<html lang="en"><body><footer>&copy; 2009-2024 Acme</footer></body></html>`, Now: now})
	for _, c := range b.Checks {
		if c.Name == "copyright" {
			require.True(t, c.Passed)
		}
	}
}
