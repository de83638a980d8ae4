// Package i18n renders achievement and distribution labels for display.
// Ids and thresholds stay in core; this package only maps them to text.
package i18n

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"

	"envelopes/internal/core"
)

var supported = []language.Tag{language.English, language.Russian}

var matcher = language.NewMatcher(supported)

// Supported currencies in display order.
var Currencies = []string{"RUB", "USD", "EUR", "KZT", "BYN", "UAH"}

var symbols = map[string]string{
	"RUB": "₽",
	"USD": "$",
	"EUR": "€",
	"KZT": "₸",
	"BYN": "Br",
	"UAH": "₴",
}

// Supported returns the languages with translations.
func Supported() []language.Tag {
	return append([]language.Tag(nil), supported...)
}

// Match picks the best supported language for a list of preferences such
// as a lang query value or an Accept-Language header. Unknown input falls
// back to English.
func Match(prefs ...string) language.Tag {
	var tags []language.Tag
	for _, p := range prefs {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if parsed, _, err := language.ParseAcceptLanguage(p); err == nil {
			tags = append(tags, parsed...)
		}
	}
	if len(tags) == 0 {
		return supported[0]
	}
	_, idx, conf := matcher.Match(tags...)
	if conf == language.No {
		return supported[0]
	}
	return supported[idx]
}

// Localizer formats labels and amounts for one language and currency.
type Localizer struct {
	tag      language.Tag
	currency string
	printer  *message.Printer
}

// New returns a Localizer. An unsupported currency is kept as its code.
func New(tag language.Tag, currencyCode string) *Localizer {
	return &Localizer{
		tag:      tag,
		currency: strings.ToUpper(strings.TrimSpace(currencyCode)),
		printer:  message.NewPrinter(tag, message.Catalog(messages)),
	}
}

func (l *Localizer) Language() language.Tag { return l.tag }

// Symbol returns the display symbol for the localizer's currency.
func (l *Localizer) Symbol() string {
	return Symbol(l.currency)
}

// Symbol returns the display symbol for an ISO currency code, or the code
// itself when no symbol is known.
func Symbol(code string) string {
	code = strings.ToUpper(code)
	if s, ok := symbols[code]; ok {
		return s
	}
	return code
}

// FormatAmount renders whole currency units with locale digit grouping.
func (l *Localizer) FormatAmount(amount int64) string {
	n := l.printer.Sprintf("%d", amount)
	if base, _ := l.tag.Base(); base.String() == "ru" {
		return n + " " + l.Symbol()
	}
	return l.Symbol() + n
}

// DistributionLabel returns the name and short description of d.
func (l *Localizer) DistributionLabel(d core.Distribution) (string, string) {
	key := "mode." + string(d)
	return l.printer.Sprintf(key), l.printer.Sprintf(key + ".desc")
}

// Achievement is an achievement status with display text.
type Achievement struct {
	core.AchievementStatus
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Achievements decorates statuses with localized text. Amount thresholds
// are written with the localizer's currency.
func (l *Localizer) Achievements(statuses []core.AchievementStatus) []Achievement {
	out := make([]Achievement, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, Achievement{
			AchievementStatus: s,
			Title:             l.printer.Sprintf("ach." + s.ID + ".title"),
			Description:       l.describe(s),
		})
	}
	return out
}

func (l *Localizer) describe(s core.AchievementStatus) string {
	key := "ach." + s.ID + ".desc"
	if _, known := titles[s.ID]; known {
		if s.Condition == core.ConditionAmount {
			return l.printer.Sprintf(key, l.FormatAmount(int64(s.Goal)))
		}
		return l.printer.Sprintf(key)
	}
	// Custom definitions get a generic description.
	switch s.Condition {
	case core.ConditionAmount:
		return l.printer.Sprintf("ach.generic.amount", l.FormatAmount(int64(s.Goal)))
	case core.ConditionStreak:
		return l.printer.Sprintf("ach.generic.streak", int(s.Goal))
	default:
		return l.printer.Sprintf("ach.generic.completion", int(s.Goal))
	}
}

// titles lists ids with catalog entries, used to tell custom ids apart.
var titles = map[string]struct{}{}

var messages = mustBuildCatalog()

func mustBuildCatalog() *catalog.Builder {
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	for tag, entries := range translations {
		for key, msg := range entries {
			if err := b.SetString(tag, key, msg); err != nil {
				panic(fmt.Sprintf("i18n: %s %s: %v", tag, key, err))
			}
			if id, ok := strings.CutPrefix(key, "ach."); ok {
				if id, ok = strings.CutSuffix(id, ".title"); ok && id != "generic" {
					titles[id] = struct{}{}
				}
			}
		}
	}
	return b
}
