package cards

// templates maps template ids to constructors. Each constructor builds
// the card body from the locale catalog; caller substitutions fill the
// {{placeholder}} markers afterwards.
var templates = map[string]func(cat map[string]string) Card{
	TemplateWelcome:      welcomeCard,
	TemplateStartMeeting: startMeetingCard,
	TemplateEndMeeting:   endMeetingCard,
	TemplatePoll:         pollCard,
	TemplatePollResults:  pollResultsCard,
	TemplateRoomSettings: settingsCard,
	TemplateUserSettings: settingsCard,
	TemplateRejection:    rejectionCard,
	TemplateHelp:         helpCard,
}

func newCard(body ...any) Card {
	return Card{Type: "AdaptiveCard", Version: "1.0", Body: body}
}

func textBlock(text string, bold bool) map[string]any {
	block := map[string]any{"type": "TextBlock", "text": text}
	if bold {
		block["weight"] = "Bolder"
		block["size"] = "Medium"
	}
	return block
}

func textInput(id, label, placeholder string) map[string]any {
	return map[string]any{
		"type":        "Input.Text",
		"id":          id,
		"label":       label,
		"placeholder": placeholder,
	}
}

func actionSet(actions ...Action) map[string]any {
	items := make([]any, len(actions))
	for i, a := range actions {
		items[i] = map[string]any{
			"type":  "Action.Submit",
			"title": a.Title,
			"id":    a.ID,
		}
	}
	return map[string]any{
		"type":                "ActionSet",
		"horizontalAlignment": "Right",
		"actions":             items,
	}
}

func welcomeCard(cat map[string]string) Card {
	return newCard(
		textBlock(cat["welcome_title"], true),
		textBlock(cat["welcome_prompt"], false),
		textInput("meeting_subject", cat["welcome_subject"], cat["welcome_subject"]),
		actionSet(Action{Title: cat["welcome_start"], ID: "start_meeting"}),
	)
}

func startMeetingCard(cat map[string]string) Card {
	return newCard(
		textBlock(cat["meeting_started"], true),
		textBlock("{{display_name}} "+cat["meeting_started_by"], false),
		textBlock(cat["present_hint"], false),
		actionSet(Action{Title: cat["present_button"], ID: "present"}),
		textInput("poll_subject", cat["poll_subject"], cat["poll_subject"]),
		textInput("time_limit", cat["poll_limit"], cat["poll_limit"]),
		actionSet(
			Action{Title: cat["start_poll_button"], ID: "start_poll"},
			Action{Title: cat["end_meeting_button"], ID: "end_meeting"},
		),
	)
}

func endMeetingCard(cat map[string]string) Card {
	return newCard(
		textBlock(cat["meeting_ended"], true),
		textBlock("{{display_name}} "+cat["meeting_ended_by"], false),
		textInput("meeting_subject", cat["welcome_subject"], cat["welcome_subject"]),
		actionSet(Action{Title: cat["welcome_start"], ID: "start_meeting"}),
	)
}

func pollCard(cat map[string]string) Card {
	return newCard(
		textBlock("{{poll_subject}}", true),
		textBlock("{{display_name}} "+cat["poll_started_by"], false),
		textBlock(cat["poll_limit"]+": {{time_limit}}s", false),
		actionSet(
			Action{Title: cat["vote_yea"], ID: "yea"},
			Action{Title: cat["vote_nay"], ID: "nay"},
			Action{Title: cat["vote_abstain"], ID: "abstain"},
		),
	)
}

func pollResultsCard(cat map[string]string) Card {
	return newCard(
		textBlock("{{poll_subject}} - "+cat["poll_results_title"], true),
		textBlock(cat["vote_yea"]+": {{yea_count}}", false),
		textBlock(cat["vote_nay"]+": {{nay_count}}", false),
		textBlock(cat["vote_abstain"]+": {{abstain_count}}", false),
	)
}

func settingsCard(cat map[string]string) Card {
	return newCard(
		textBlock(cat["settings_title"], true),
		textInput("language", cat["settings_language"], cat["settings_language"]),
		textInput("partialResults", cat["settings_partial"], cat["settings_partial"]),
		textInput("activeVotesOnly", cat["settings_active"], cat["settings_active"]),
		actionSet(Action{Title: cat["settings_save"], ID: "save_settings"}),
	)
}

func rejectionCard(cat map[string]string) Card {
	return newCard(textBlock(cat["not_moderator"], false))
}

func helpCard(cat map[string]string) Card {
	return newCard(textBlock(cat["help"], false))
}
