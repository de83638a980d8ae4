package i18n

import (
	"strings"
	"testing"

	"golang.org/x/text/language"

	"envelopes/internal/core"
)

func TestMatch(t *testing.T) {
	tests := []struct {
		name  string
		prefs []string
		want  language.Tag
	}{
		{name: "empty falls back to english", want: language.English},
		{name: "explicit ru", prefs: []string{"ru"}, want: language.Russian},
		{name: "regional ru", prefs: []string{"ru-RU"}, want: language.Russian},
		{name: "accept header prefers ru", prefs: []string{"ru-RU,ru;q=0.9,en;q=0.8"}, want: language.Russian},
		{name: "unsupported language", prefs: []string{"ja"}, want: language.English},
		{name: "garbage", prefs: []string{"!!"}, want: language.English},
		{name: "first non-empty wins", prefs: []string{"", "ru"}, want: language.Russian},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Match(tt.prefs...); got != tt.want {
				t.Errorf("Match(%q) = %v, want %v", tt.prefs, got, tt.want)
			}
		})
	}
}

func TestSymbol(t *testing.T) {
	for _, code := range Currencies {
		if Symbol(code) == code {
			t.Errorf("Symbol(%s) has no symbol", code)
		}
	}
	if got := Symbol("CHF"); got != "CHF" {
		t.Errorf("Symbol(CHF) = %q, want code fallback", got)
	}
}

func TestFormatAmount(t *testing.T) {
	en := New(language.English, "usd")
	if got := en.FormatAmount(1000); got != "$1,000" {
		t.Errorf("en FormatAmount = %q, want $1,000", got)
	}

	ru := New(language.Russian, "RUB")
	got := ru.FormatAmount(5)
	if got != "5 ₽" {
		t.Errorf("ru FormatAmount = %q, want %q", got, "5 ₽")
	}
}

func TestDistributionLabel(t *testing.T) {
	name, desc := New(language.Russian, "RUB").DistributionLabel(core.Progression)
	if name != "Прогрессия" || desc != "От малого к большому" {
		t.Errorf("ru label = %q / %q", name, desc)
	}
	name, _ = New(language.English, "RUB").DistributionLabel(core.Random)
	if name != "Random" {
		t.Errorf("en label = %q", name)
	}
}

func TestAchievements(t *testing.T) {
	ev := core.NewEvaluator(nil, nil)
	c := &core.Challenge{
		TargetAmount:         2000,
		Days:                 2,
		Currency:             "USD",
		Envelopes:            []core.Envelope{{ID: 1, Amount: 1000}, {ID: 2, Amount: 1000}},
		UnlockedAchievements: []string{},
	}
	statuses := ev.Status(c)

	en := New(language.English, c.Currency).Achievements(statuses)
	if len(en) != len(core.DefaultAchievements()) {
		t.Fatalf("got %d achievements", len(en))
	}
	byID := map[string]Achievement{}
	for _, a := range en {
		if a.Title == "" || strings.HasPrefix(a.Title, "ach.") {
			t.Errorf("%s has no title: %q", a.ID, a.Title)
		}
		byID[a.ID] = a
	}
	if d := byID[core.AchievementSaved1000].Description; d != "First $1,000 accumulated" {
		t.Errorf("saved_1000 desc = %q", d)
	}
	if d := byID[core.AchievementHalfWay].Description; d != "50% of goal reached" {
		t.Errorf("half_way desc = %q", d)
	}

	ru := New(language.Russian, c.Currency).Achievements(statuses)
	if ru[0].Title != "Первый шаг" {
		t.Errorf("ru first title = %q", ru[0].Title)
	}
}

func TestAchievements_CustomDefinition(t *testing.T) {
	status := core.AchievementStatus{
		AchievementDefinition: core.AchievementDefinition{ID: "streak_30", Condition: core.ConditionStreak, Threshold: 30},
		Goal:                  30,
	}
	got := New(language.English, "EUR").Achievements([]core.AchievementStatus{status})
	if got[0].Description != "30 day streak" {
		t.Errorf("custom desc = %q", got[0].Description)
	}
}
