package meeting

import (
	"bytes"
	"context"
	"fmt"
	"strconv"

	"github.com/roach88/quorum/internal/cards"
	"github.com/roach88/quorum/internal/entity"
	"github.com/roach88/quorum/internal/export"
	"github.com/roach88/quorum/internal/platform"
	"github.com/roach88/quorum/internal/poll"
	"github.com/roach88/quorum/internal/settings"
)

// Form field names the submitted cards carry.
const (
	inputMeetingSubject = "meeting_subject"
	inputPollSubject    = "poll_subject"
	inputTimeLimit      = "time_limit"
	inputVote           = "vote"
)

// actAnnounce greets a room the bot just joined. A room that has never
// stored settings is detoured into the settings form first; the welcome
// card waits until the form comes back.
func (d *Dispatcher) actAnnounce(ctx context.Context, ev Event, cur State) (Outcome, error) {
	rec, err := d.store.Get(ctx, ev.RoomID, entity.SKSettings)
	if err != nil {
		return keep(), fmt.Errorf("announce: read settings: %w", err)
	}

	if rec == nil {
		if err := d.sendCard(ctx, ev.RoomID, cards.TemplateRoomSettings, nil, settings.Defaults().Language); err != nil {
			return keep(), fmt.Errorf("announce: %w", err)
		}
		return override(StateRoomSettings), nil
	}

	vals := settings.Decode(rec)
	if err := d.sendCard(ctx, ev.RoomID, cards.TemplateWelcome, nil, vals.Language); err != nil {
		return keep(), fmt.Errorf("announce: %w", err)
	}
	return keep(), nil
}

// actStartMeeting opens a meeting: writes the start boundary marker and
// posts the in-meeting card with the presence and poll controls.
func (d *Dispatcher) actStartMeeting(ctx context.Context, ev Event, cur State) (Outcome, error) {
	vals := d.effectiveSettings(ctx, ev)

	allowed, err := d.isModerator(ctx, ev.RoomID, ev.ActorID)
	if err != nil {
		return keep(), fmt.Errorf("start meeting: %w", err)
	}
	if !allowed {
		return d.reject(ctx, ev, cur, vals.Language)
	}

	if err := d.polls.MarkMeeting(ctx, ev.RoomID, entity.KindMeetingStart, ev.Input(inputMeetingSubject)); err != nil {
		return keep(), fmt.Errorf("start meeting: %w", err)
	}

	name, err := d.displayName(ctx, ev.ActorID)
	if err != nil {
		return keep(), fmt.Errorf("start meeting: %w", err)
	}
	subs := map[string]string{"display_name": name}
	if err := d.sendCard(ctx, ev.RoomID, cards.TemplateStartMeeting, subs, vals.Language); err != nil {
		return keep(), fmt.Errorf("start meeting: %w", err)
	}

	return keep(), nil
}

// actEndMeeting closes the meeting: any running poll is closed first so
// its snapshot lands inside the meeting window, then the end marker is
// written, the meeting's collected results go out as a file, presence is
// reset, and the room gets the closing card.
func (d *Dispatcher) actEndMeeting(ctx context.Context, ev Event, cur State) (Outcome, error) {
	vals := d.effectiveSettings(ctx, ev)

	allowed, err := d.isModerator(ctx, ev.RoomID, ev.ActorID)
	if err != nil {
		return keep(), fmt.Errorf("end meeting: %w", err)
	}
	if !allowed {
		return d.reject(ctx, ev, cur, vals.Language)
	}

	// Requester id "" bypasses the stale-message guard: the meeting end
	// closes whatever poll is open, no matter which card asked for it.
	if _, err := d.polls.Close(ctx, ev.RoomID, "", poll.CloseOptions{ActiveVotesOnly: vals.ActiveVotesOnly}); err != nil {
		return keep(), fmt.Errorf("end meeting: close poll: %w", err)
	}

	if err := d.polls.MarkMeeting(ctx, ev.RoomID, entity.KindMeetingEnd, ""); err != nil {
		return keep(), fmt.Errorf("end meeting: %w", err)
	}

	if err := d.sendMeetingResults(ctx, ev.RoomID, vals.Language); err != nil {
		d.logger.Error("end meeting: results file", "room", ev.RoomID, "error", err)
	}

	if err := d.presence.ClearAll(ctx, ev.RoomID); err != nil {
		return keep(), fmt.Errorf("end meeting: %w", err)
	}

	name, err := d.displayName(ctx, ev.ActorID)
	if err != nil {
		return keep(), fmt.Errorf("end meeting: %w", err)
	}
	subs := map[string]string{"display_name": name}
	if err := d.sendCard(ctx, ev.RoomID, cards.TemplateEndMeeting, subs, vals.Language); err != nil {
		return keep(), fmt.Errorf("end meeting: %w", err)
	}

	return keep(), nil
}

// actRoomSettings persists a submitted room settings form.
func (d *Dispatcher) actRoomSettings(ctx context.Context, ev Event, cur State) (Outcome, error) {
	if _, err := d.resolver.SaveScope(ctx, ev.RoomID, settings.Update(ev.Inputs)); err != nil {
		return keep(), fmt.Errorf("room settings: %w", err)
	}
	return keep(), nil
}

// actRoomSettingsThenWelcome persists the first-contact settings form and
// follows up with the welcome card the detour postponed.
func (d *Dispatcher) actRoomSettingsThenWelcome(ctx context.Context, ev Event, cur State) (Outcome, error) {
	vals, err := d.resolver.SaveScope(ctx, ev.RoomID, settings.Update(ev.Inputs))
	if err != nil {
		return keep(), fmt.Errorf("room settings: %w", err)
	}
	if err := d.sendCard(ctx, ev.RoomID, cards.TemplateWelcome, nil, vals.Language); err != nil {
		return keep(), fmt.Errorf("room settings: %w", err)
	}
	return keep(), nil
}

// actUserSettings persists a participant's personal settings form. The
// explicit-edit flag is what later lets this scope override the room's.
func (d *Dispatcher) actUserSettings(ctx context.Context, ev Event, cur State) (Outcome, error) {
	upd := settings.Update{}
	for key, value := range ev.Inputs {
		upd[key] = value
	}
	upd[settings.KeyUserExplicitlyEdited] = "true"

	if _, err := d.resolver.SaveScope(ctx, ev.ActorID, upd); err != nil {
		return keep(), fmt.Errorf("user settings: %w", err)
	}
	return keep(), nil
}

// actPresence marks the pressing participant present.
func (d *Dispatcher) actPresence(ctx context.Context, ev Event, cur State) (Outcome, error) {
	if err := d.presence.Mark(ctx, ev.RoomID, ev.ActorID); err != nil {
		return keep(), fmt.Errorf("presence: %w", err)
	}
	return keep(), nil
}

// actStartPoll opens a poll from the in-meeting card's form fields.
func (d *Dispatcher) actStartPoll(ctx context.Context, ev Event, cur State) (Outcome, error) {
	vals := d.effectiveSettings(ctx, ev)

	limit := d.defaultPollLimit
	if raw := ev.Input(inputTimeLimit); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			d.logger.Debug("start poll: bad time limit, using default",
				"room", ev.RoomID, "raw", raw)
		} else {
			limit = n
		}
	}

	_, err := d.polls.Start(ctx, poll.StartRequest{
		RoomID:      ev.RoomID,
		Subject:     ev.Input(inputPollSubject),
		TimeLimit:   limit,
		InitiatorID: ev.ActorID,
		Locale:      vals.Language,
	})
	if err != nil {
		// The poll never opened; fall back to the in-meeting state so the
		// room is not stuck waiting for a close that cannot come.
		d.logger.Error("start poll failed", "room", ev.RoomID, "error", err)
		return override(cur), nil
	}
	return keep(), nil
}

// actPollVote records the pressed choice.
func (d *Dispatcher) actPollVote(ctx context.Context, ev Event, cur State) (Outcome, error) {
	if err := d.polls.RecordVote(ctx, ev.RoomID, ev.PollMessageID, ev.ActorID, ev.Input(inputVote)); err != nil {
		return keep(), fmt.Errorf("poll vote: %w", err)
	}
	return keep(), nil
}

// actEndPoll closes the identified poll and publishes its tally. A stale
// close (the poll already ended, or a newer poll superseded the named
// one) restores the pre-transition state: the event was for a poll that
// is no longer the room's concern.
func (d *Dispatcher) actEndPoll(ctx context.Context, ev Event, cur State) (Outcome, error) {
	vals := d.effectiveSettings(ctx, ev)

	tally, err := d.polls.Close(ctx, ev.RoomID, ev.PollMessageID, poll.CloseOptions{ActiveVotesOnly: vals.ActiveVotesOnly})
	if err != nil {
		return keep(), fmt.Errorf("end poll: %w", err)
	}
	if tally == nil {
		return override(cur), nil
	}

	yea, nay, abstain := tally.Counts()
	subs := map[string]string{
		"poll_subject":  tally.Subject,
		"yea_count":     strconv.Itoa(yea),
		"nay_count":     strconv.Itoa(nay),
		"abstain_count": strconv.Itoa(abstain),
	}
	if err := d.sendCard(ctx, ev.RoomID, cards.TemplatePollResults, subs, vals.Language); err != nil {
		return keep(), fmt.Errorf("end poll: %w", err)
	}

	if vals.PartialResults {
		if err := d.sendTallyFile(ctx, ev.RoomID, tally); err != nil {
			d.logger.Error("end poll: results file", "room", ev.RoomID, "error", err)
		}
	}

	return keep(), nil
}

// actRemoved notes the removal. The room is unreachable from here on, so
// nothing external happens; the REMOVED state is what matters.
func (d *Dispatcher) actRemoved(ctx context.Context, ev Event, cur State) (Outcome, error) {
	d.logger.Info("removed from room", "room", ev.RoomID)
	return keep(), nil
}

// sendHelp answers a direct mention. Help is stateless: any room, any
// state, no transition.
func (d *Dispatcher) sendHelp(ctx context.Context, ev Event) error {
	vals := d.effectiveSettings(ctx, ev)
	if err := d.sendCard(ctx, ev.RoomID, cards.TemplateHelp, nil, vals.Language); err != nil {
		return fmt.Errorf("help: %w", err)
	}
	return nil
}

// reject tells the actor they lack moderator rights and restores the
// pre-transition state.
func (d *Dispatcher) reject(ctx context.Context, ev Event, cur State, locale string) (Outcome, error) {
	if err := d.sendCard(ctx, ev.ActorID, cards.TemplateRejection, nil, locale); err != nil {
		return override(cur), fmt.Errorf("reject: %w", err)
	}
	return override(cur), nil
}

// isModerator reports whether actorID may run meetings in roomID. An
// unmoderated room (no moderators at all) and direct channels let anyone.
func (d *Dispatcher) isModerator(ctx context.Context, roomID, actorID string) (bool, error) {
	direct, err := d.msgr.IsDirectChannel(ctx, roomID)
	if err != nil {
		return false, fmt.Errorf("check channel type: %w", err)
	}
	if direct {
		return true, nil
	}

	mods, err := d.msgr.Moderators(ctx, roomID)
	if err != nil {
		return false, fmt.Errorf("list moderators: %w", err)
	}
	if len(mods) == 0 {
		return true, nil
	}
	for _, id := range mods {
		if id == actorID {
			return true, nil
		}
	}
	return false, nil
}

func (d *Dispatcher) sendCard(ctx context.Context, roomID, templateID string, subs map[string]string, locale string) error {
	att, err := d.renderer.Render(templateID, subs, locale)
	if err != nil {
		return err
	}
	if _, err := d.msgr.SendMessage(ctx, roomID, att.Markdown, []platform.Attachment{att}); err != nil {
		return fmt.Errorf("send %s card: %w", templateID, err)
	}
	return nil
}

func (d *Dispatcher) displayName(ctx context.Context, participantID string) (string, error) {
	member, err := d.msgr.Member(ctx, participantID)
	if err != nil {
		return "", fmt.Errorf("resolve member %s: %w", participantID, err)
	}
	return member.DisplayName, nil
}

// sendTallyFile exports one poll's tally rows and posts them as a file.
func (d *Dispatcher) sendTallyFile(ctx context.Context, roomID string, tally *poll.Tally) error {
	rows := make([][]string, 0, len(tally.Rows))
	for _, row := range tally.Rows {
		rows = append(rows, []string{row.Participant, row.Choice})
	}
	return d.sendFile(ctx, roomID, export.Filename(tally.Subject, d.now()),
		[]string{"participant", "choice"}, rows)
}

// sendMeetingResults exports the whole meeting's snapshots as one file.
// A meeting with no closed polls sends nothing.
func (d *Dispatcher) sendMeetingResults(ctx context.Context, roomID, locale string) error {
	snapshots, err := d.polls.MeetingResults(ctx, roomID)
	if err != nil {
		return err
	}
	if len(snapshots) == 0 {
		return nil
	}

	rows := [][]string{}
	for _, snap := range snapshots {
		for _, row := range snap.Rows {
			rows = append(rows, []string{snap.Subject, row.Participant, row.Choice})
		}
	}
	return d.sendFile(ctx, roomID, export.Filename("meeting results", d.now()),
		[]string{"poll", "participant", "choice"}, rows)
}

func (d *Dispatcher) sendFile(ctx context.Context, roomID, basename string, headers []string, rows [][]string) error {
	content, err := d.exporter.Export(headers, rows)
	if err != nil {
		return err
	}
	filename := basename + d.exporter.FileExt()
	if _, err := d.msgr.SendFile(ctx, roomID, filename, d.exporter.ContentType(), bytes.NewReader(content)); err != nil {
		return fmt.Errorf("send file %s: %w", filename, err)
	}
	return nil
}
