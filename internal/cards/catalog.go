package cards

import "golang.org/x/text/language"

// Languages offered in the settings card, keyed by BCP 47 tag.
var Languages = map[string]string{
	"en": "English",
	"cs": "Čeština",
}

// supported holds the tags the matcher can fall back across. English
// first - it is the default for unknown locales.
var supported = []language.Tag{
	language.English,
	language.Czech,
}

var matcher = language.NewMatcher(supported)

// catalogs are the per-locale string tables the templates draw from.
var catalogs = map[string]map[string]string{
	"en": {
		"fallback_msg":       "This is an interactive form. Open it in a client with card support.",
		"welcome_title":      "Welcome to the meeting vote bot",
		"welcome_prompt":     "Please start a new meeting",
		"welcome_subject":    "Meeting subject",
		"welcome_start":      "Start",
		"meeting_started":    "Meeting started",
		"meeting_started_by": "started the meeting",
		"present_hint":       "Click Present to be counted, otherwise you are recorded only once you actively vote",
		"present_button":     "Present",
		"start_poll_button":  "Start poll",
		"poll_subject":       "Poll subject",
		"poll_limit":         "Time limit",
		"end_meeting_button": "End meeting",
		"meeting_ended":      "Meeting ended",
		"meeting_ended_by":   "ended the meeting",
		"poll_started_by":    "started a poll",
		"vote_yea":           "Yea",
		"vote_nay":           "Nay",
		"vote_abstain":       "Abstain",
		"poll_results_title": "poll results",
		"results_download":   "Results ready for download.",
		"settings_title":     "Bot settings",
		"settings_language":  "Language",
		"settings_partial":   "Send a results file after every poll",
		"settings_active":    "Count only explicit votes",
		"settings_save":      "Save",
		"not_moderator":      "Only a moderator of this room can do that.",
		"help":               "I run votes in this room through interactive forms. Start a meeting and I will take it from there.",
	},
	"cs": {
		"fallback_msg":       "Toto je formulář. Zobrazíte si ho v aplikaci s podporou karet.",
		"welcome_title":      "Vítá vás bot pro řízení hlasování",
		"welcome_prompt":     "Zahajte prosím novou schůzi",
		"welcome_subject":    "Název schůze",
		"welcome_start":      "Zahájit",
		"meeting_started":    "Schůze zahájena",
		"meeting_started_by": "zahájil schůzi",
		"present_hint":       "Klikněte na tlačítko Přítomen, jinak bude vaše přítomnost zaznamenána až od chvíle, kdy se aktivně zúčastníte hlasování",
		"present_button":     "Přítomen",
		"start_poll_button":  "Zahájit hlasování",
		"poll_subject":       "Téma hlasování",
		"poll_limit":         "Časový limit",
		"end_meeting_button": "Ukončit schůzi",
		"meeting_ended":      "Schůze ukončena",
		"meeting_ended_by":   "ukončil schůzi",
		"poll_started_by":    "zahájil hlasování",
		"vote_yea":           "Pro",
		"vote_nay":           "Proti",
		"vote_abstain":       "Zdržuji se",
		"poll_results_title": "výsledky hlasování",
		"results_download":   "Výsledky ke stažení.",
		"settings_title":     "Nastavení Bota",
		"settings_language":  "Jazyk",
		"settings_partial":   "Odeslat soubor s výsledky po každém hlasování",
		"settings_active":    "Počítat pouze aktivní hlasy",
		"settings_save":      "Uložit",
		"not_moderator":      "Toto může udělat pouze moderátor místnosti.",
		"help":               "Řídím hlasování v této místnosti pomocí formulářů. Zahajte schůzi a já se postarám o zbytek.",
	},
}

// catalogFor resolves a locale identifier to the closest supported
// catalog. Unparseable or unsupported locales fall back to English.
func catalogFor(locale string) map[string]string {
	tag, err := language.Parse(locale)
	if err != nil {
		return catalogs["en"]
	}
	_, idx, _ := matcher.Match(tag)
	base, _ := supported[idx].Base()
	if cat, ok := catalogs[base.String()]; ok {
		return cat
	}
	return catalogs["en"]
}
