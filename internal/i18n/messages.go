package i18n

import "golang.org/x/text/language"

var translations = map[language.Tag]map[string]string{
	language.English: {
		"mode.equal":            "Equal",
		"mode.equal.desc":       "Same amount daily",
		"mode.progression":      "Progression",
		"mode.progression.desc": "Low to high",
		"mode.random":           "Random",
		"mode.random.desc":      "Balanced mix",

		"ach.first_step.title":   "First Step",
		"ach.first_step.desc":    "Open your first envelope",
		"ach.saved_1000.title":   "Piggy Bank",
		"ach.saved_1000.desc":    "First %s accumulated",
		"ach.saved_5000.title":   "Banker",
		"ach.saved_5000.desc":    "%s accumulated",
		"ach.saved_10000.title":  "Tycoon",
		"ach.saved_10000.desc":   "%s accumulated",
		"ach.streak_3.title":     "Warm Up",
		"ach.streak_3.desc":      "3 day streak",
		"ach.streak_7.title":     "Discipline Week",
		"ach.streak_7.desc":      "7 day streak without skipping",
		"ach.half_way.title":     "Half Way",
		"ach.half_way.desc":      "50%% of goal reached",
		"ach.goal_reached.title": "Dream Come True",
		"ach.goal_reached.desc":  "Goal fully achieved!",

		"ach.generic.amount":     "%s accumulated",
		"ach.generic.streak":     "%d day streak",
		"ach.generic.completion": "%d%% of goal reached",
	},
	language.Russian: {
		"mode.equal":            "Равные",
		"mode.equal.desc":       "Одинаковые суммы",
		"mode.progression":      "Прогрессия",
		"mode.progression.desc": "От малого к большому",
		"mode.random":           "Рандом",
		"mode.random.desc":      "Умеренный разброс",

		"ach.first_step.title":   "Первый шаг",
		"ach.first_step.desc":    "Откройте свой первый конверт",
		"ach.saved_1000.title":   "Копилка",
		"ach.saved_1000.desc":    "Накоплена первая %s",
		"ach.saved_5000.title":   "Банкир",
		"ach.saved_5000.desc":    "Накоплено %s",
		"ach.saved_10000.title":  "Магнат",
		"ach.saved_10000.desc":   "Накоплено %s",
		"ach.streak_3.title":     "Разминка",
		"ach.streak_3.desc":      "3 дня подряд вы открываете конверты",
		"ach.streak_7.title":     "Неделя дисциплины",
		"ach.streak_7.desc":      "7 дней подряд без пропусков",
		"ach.half_way.title":     "Экватор",
		"ach.half_way.desc":      "Половина суммы собрана",
		"ach.goal_reached.title": "Мечта сбылась",
		"ach.goal_reached.desc":  "Цель полностью достигнута!",

		"ach.generic.amount":     "Накоплено %s",
		"ach.generic.streak":     "%d дней подряд",
		"ach.generic.completion": "Собрано %d%% суммы",
	},
}
