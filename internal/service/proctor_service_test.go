package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/examguard/examguard-backend/internal/apperr"
	"github.com/examguard/examguard-backend/internal/model"
	"github.com/examguard/examguard-backend/internal/storage"
	"github.com/rs/zerolog"
)

type proctorEnv struct {
	*attemptEnv
	chats *fakeChatStore
	media *fakeMediaStore
	svc   *ProctorService
}

func newProctorEnv(questions ...model.Question) *proctorEnv {
	base := newAttemptEnv(questions...)
	chats := &fakeChatStore{}
	media := &fakeMediaStore{}
	svc := NewProctorService(base.cfg, base.store, base.exams, chats, &fakeCheckStore{}, media, base.bus, zerolog.Nop())
	return &proctorEnv{attemptEnv: base, chats: chats, media: media, svc: svc}
}

func recording(id string) *RecordingUpload {
	return &RecordingUpload{
		Reader:      strings.NewReader("video-bytes"),
		Size:        11,
		Filename:    id + ".webm",
		RecordingID: id,
	}
}

func TestSaveRecordingBothStreams(t *testing.T) {
	env := newProctorEnv(singleChoice(1, "a"))
	ctx := context.Background()

	a, _ := env.attemptEnv.svc.Start(ctx, student, env.exam.ID)
	statuses, err := env.svc.SaveRecording(ctx, student, a.ID, SaveRecordingInput{
		SessionToken: a.SessionToken,
		Camera:       recording("cam-1"),
		Screen:       recording("scr-1"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if !statuses["camera"].Success || !statuses["screen"].Success {
		t.Fatalf("statuses = %+v", statuses)
	}

	stored, _ := env.store.GetByID(ctx, a.ID)
	if stored.Recordings.CameraRecordingID != "cam-1" || stored.Recordings.ScreenRecordingID != "scr-1" {
		t.Fatalf("recordings = %+v", stored.Recordings)
	}
	if stored.Recordings.CameraVideo == "" || stored.Recordings.ScreenVideo == "" {
		t.Fatalf("stream locators missing: %+v", stored.Recordings)
	}
}

func TestSaveRecordingPartialFailure(t *testing.T) {
	env := newProctorEnv(singleChoice(1, "a"))
	env.media.failKinds = map[storage.MediaKind]error{
		storage.MediaScreen: errors.New("bucket unavailable"),
	}
	ctx := context.Background()

	a, _ := env.attemptEnv.svc.Start(ctx, student, env.exam.ID)
	statuses, err := env.svc.SaveRecording(ctx, student, a.ID, SaveRecordingInput{
		SessionToken: a.SessionToken,
		Camera:       recording("cam-1"),
		Screen:       recording("scr-1"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if !statuses["camera"].Success {
		t.Fatalf("camera = %+v, want success", statuses["camera"])
	}
	if statuses["screen"].Success || statuses["screen"].Error == "" {
		t.Fatalf("screen = %+v, want failure with message", statuses["screen"])
	}

	// The surviving stream was still recorded.
	stored, _ := env.store.GetByID(ctx, a.ID)
	if stored.Recordings.CameraVideo == "" {
		t.Fatal("camera locator lost to the screen failure")
	}
	if stored.Recordings.ScreenVideo != "" {
		t.Fatal("failed screen stream left a locator")
	}
}

func TestSaveRecordingAfterSubmitAccepted(t *testing.T) {
	q := singleChoice(1, "a")
	env := newProctorEnv(q)
	ctx := context.Background()

	a, _ := env.attemptEnv.svc.Start(ctx, student, env.exam.ID)
	if _, err := env.attemptEnv.svc.Submit(ctx, student, a.ID, model.SubmitRequest{
		SessionToken: a.SessionToken,
	}); err != nil {
		t.Fatal(err)
	}

	statuses, err := env.svc.SaveRecording(ctx, student, a.ID, SaveRecordingInput{
		SessionToken: a.SessionToken,
		Camera:       recording("cam-late"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if !statuses["camera"].Success {
		t.Fatalf("late upload rejected: %+v", statuses["camera"])
	}
}

func TestSaveRecordingTokenMismatch(t *testing.T) {
	env := newProctorEnv(singleChoice(1, "a"))
	ctx := context.Background()

	a, _ := env.attemptEnv.svc.Start(ctx, student, env.exam.ID)
	_, err := env.svc.SaveRecording(ctx, student, a.ID, SaveRecordingInput{
		SessionToken: "stale",
		Camera:       recording("cam-1"),
	})
	wantCode(t, err, apperr.CodeSessionMismatch)
}

func TestSaveRecordingNoStreams(t *testing.T) {
	env := newProctorEnv(singleChoice(1, "a"))
	ctx := context.Background()

	a, _ := env.attemptEnv.svc.Start(ctx, student, env.exam.ID)
	_, err := env.svc.SaveRecording(ctx, student, a.ID, SaveRecordingInput{
		SessionToken: a.SessionToken,
	})
	wantCode(t, err, apperr.CodeInvalidInput)
}

func TestChatBlockRejectsStudentOnly(t *testing.T) {
	env := newProctorEnv(singleChoice(1, "a"))
	ctx := context.Background()

	a, _ := env.attemptEnv.svc.Start(ctx, student, env.exam.ID)
	if _, err := env.svc.SendMessage(ctx, student, a.ID, "hello"); err != nil {
		t.Fatal(err)
	}

	if err := env.svc.SetChatBlocked(ctx, proctor, a.ID, true); err != nil {
		t.Fatal(err)
	}

	_, err := env.svc.SendMessage(ctx, student, a.ID, "still there?")
	wantCode(t, err, apperr.CodeChatBlocked)

	// Admin sends pass through the block.
	if _, err := env.svc.SendMessage(ctx, proctor, a.ID, "stop talking"); err != nil {
		t.Fatal(err)
	}

	if err := env.svc.SetChatBlocked(ctx, proctor, a.ID, false); err != nil {
		t.Fatal(err)
	}
	if _, err := env.svc.SendMessage(ctx, student, a.ID, "sorry"); err != nil {
		t.Fatal(err)
	}

	msgs, err := env.svc.ListMessages(ctx, student, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 3 {
		t.Fatalf("messages = %d, want 3", len(msgs))
	}
}

func TestSetChatBlockedRequiresStaff(t *testing.T) {
	env := newProctorEnv(singleChoice(1, "a"))
	ctx := context.Background()

	a, _ := env.attemptEnv.svc.Start(ctx, student, env.exam.ID)
	err := env.svc.SetChatBlocked(ctx, student, a.ID, true)
	wantCode(t, err, apperr.CodeForbidden)
}

func TestSendMessagePublishes(t *testing.T) {
	env := newProctorEnv(singleChoice(1, "a"))
	ctx := context.Background()

	a, _ := env.attemptEnv.svc.Start(ctx, student, env.exam.ID)
	msg, err := env.svc.SendMessage(ctx, proctor, a.ID, "please face the camera")
	if err != nil {
		t.Fatal(err)
	}
	if msg.Sender != model.ChatSenderAdmin {
		t.Fatalf("sender = %s, want admin", msg.Sender)
	}
	if len(env.bus.publishes) != 1 {
		t.Fatalf("publishes = %d, want 1", len(env.bus.publishes))
	}
}

func TestChatVisibility(t *testing.T) {
	env := newProctorEnv(singleChoice(1, "a"))
	ctx := context.Background()

	a, _ := env.attemptEnv.svc.Start(ctx, student, env.exam.ID)
	other := model.Principal{ID: 8, Role: model.RoleStudent}

	_, err := env.svc.SendMessage(ctx, other, a.ID, "hi")
	wantCode(t, err, apperr.CodeForbidden)
	_, err = env.svc.ListMessages(ctx, other, a.ID)
	wantCode(t, err, apperr.CodeForbidden)
}

func TestListChecksRequiresStaff(t *testing.T) {
	env := newProctorEnv(singleChoice(1, "a"))
	ctx := context.Background()

	a, _ := env.attemptEnv.svc.Start(ctx, student, env.exam.ID)
	_, err := env.svc.ListChecks(ctx, student, a.ID)
	wantCode(t, err, apperr.CodeForbidden)

	if _, err := env.svc.ListChecks(ctx, proctor, a.ID); err != nil {
		t.Fatal(err)
	}
}

func TestLiveRoster(t *testing.T) {
	q := singleChoice(1, "a")
	env := newProctorEnv(q)
	ctx := context.Background()

	a, _ := env.attemptEnv.svc.Start(ctx, student, env.exam.ID)
	other := model.Principal{ID: 8, Role: model.RoleStudent}
	b, _ := env.attemptEnv.svc.Start(ctx, other, env.exam.ID)

	// One submitted attempt drops off the roster.
	if _, err := env.attemptEnv.svc.Submit(ctx, other, b.ID, model.SubmitRequest{
		SessionToken: b.SessionToken,
	}); err != nil {
		t.Fatal(err)
	}

	// Live progress comes from the redis buffer.
	env.bus.CacheAnswer(ctx, a.ID.String(), q.ID.String(), `"a"`)

	roster, err := env.svc.LiveRoster(ctx, proctor, env.exam.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(roster) != 1 {
		t.Fatalf("roster = %d entries, want 1", len(roster))
	}
	entry := roster[0]
	if entry.AttemptID != a.ID || entry.UserID != student.ID {
		t.Fatalf("entry = %+v", entry)
	}
	if entry.AnsweredCount != 1 {
		t.Fatalf("answered = %d, want 1 from buffer", entry.AnsweredCount)
	}
	if entry.RemainingSeconds <= 0 || entry.RemainingSeconds > 3600 {
		t.Fatalf("remaining = %d, want within the 60 minute window", entry.RemainingSeconds)
	}
}

func TestLiveRosterRequiresStaff(t *testing.T) {
	env := newProctorEnv(singleChoice(1, "a"))
	_, err := env.svc.LiveRoster(context.Background(), student, env.exam.ID)
	wantCode(t, err, apperr.CodeForbidden)
}
