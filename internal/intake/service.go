// Package intake implements the join and SOS flows and the moderation rules
// around applicant records.
package intake

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"bakelite_bot/internal/dialog"
	"bakelite_bot/internal/models"
	"bakelite_bot/internal/notify"
	"bakelite_bot/internal/store"
)

// Wizard names.
const (
	WizardJoin   = "join"
	WizardReport = "report"
)

// Step keys.
const (
	keyRegion   = "region"
	keyNick     = "nick"
	keySkills   = "skills"
	keyDetails  = "details"
	keyLocation = "location"
	keyIssue    = "issue"
	keyContact  = "contact"
)

var (
	ErrForbidden   = errors.New("not allowed")
	ErrNotFound    = errors.New("applicant not found")
	ErrUnreachable = errors.New("no recipient could be reached")
)

// Service wires the record store and the notification router together.
type Service struct {
	store   store.Store
	router  *notify.Router
	adminID int64
	log     *zap.Logger
	newID   func() string
}

func NewService(st store.Store, router *notify.Router, adminID int64, log *zap.Logger) *Service {
	return &Service{
		store:   st,
		router:  router,
		adminID: adminID,
		log:     log,
		newID:   uuid.NewString,
	}
}

func (s *Service) AdminID() int64 { return s.adminID }

func (s *Service) IsAdmin(userID int64) bool { return userID == s.adminID }

// Wizards returns the join and report wizards bound to this service.
func (s *Service) Wizards() []*dialog.Wizard {
	return []*dialog.Wizard{
		{
			Name: WizardJoin,
			Steps: []dialog.Step{
				{Key: keyRegion, Prompt: "🛡 <b>Join as a defender</b> (1/4)\n\n🌍 Which region are you in?"},
				{Key: keyNick, Prompt: "(2/4) 🕶 What nickname should we use?"},
				{Key: keySkills, Prompt: "(3/4) 🛠 What are your skills?"},
				{Key: keyDetails, Prompt: "(4/4) 📝 Tell us about your experience."},
			},
			Review:   joinReview,
			Complete: s.completeJoin,
		},
		{
			Name: WizardReport,
			Steps: []dialog.Step{
				{Key: keyLocation, Prompt: "🆘 <b>SOS signal</b> (1/3)\n\n📍 Where are you?"},
				{Key: keyIssue, Prompt: "(2/3) ⚠️ What happened?"},
				{Key: keyContact, Prompt: "(3/3) 📞 How can a defender reach you?"},
			},
			Review:   reportReview,
			Complete: s.completeReport,
		},
	}
}

func (s *Service) completeJoin(ctx context.Context, sess *dialog.Session) (dialog.Prompt, error) {
	fields := models.ApplicantFields{
		Username: sess.Username,
		Region:   sess.Field(keyRegion),
		Nick:     sess.Field(keyNick),
		Skills:   sess.Field(keySkills),
		Details:  sess.Field(keyDetails),
		Status:   models.StatusPending,
	}
	if err := s.store.Upsert(ctx, sess.UserID, fields); err != nil {
		return dialog.Prompt{}, errors.Wrap(err, "save application")
	}
	s.log.Info("application saved", zap.Int64("user_id", sess.UserID))

	s.router.SendOne(ctx, s.adminID, applicationNotice(sess.UserID, fields),
		notify.WithHTML(), notify.WithKeyboard(moderationKeyboard(sess.UserID)))

	return dialog.Prompt{Text: joinSubmittedText}, nil
}

func (s *Service) completeReport(ctx context.Context, sess *dialog.Session) (dialog.Prompt, error) {
	sig := models.HelpSignal{
		ID:       s.newID(),
		UserID:   sess.UserID,
		Username: sess.Username,
		Location: sess.Field(keyLocation),
		Issue:    sess.Field(keyIssue),
		Contact:  sess.Field(keyContact),
	}

	recipients, err := s.signalRecipients(ctx)
	if err != nil {
		return dialog.Prompt{}, err
	}

	report := s.router.Broadcast(ctx, recipients, signalNotice(sig),
		notify.WithHTML(), notify.WithKeyboard(claimKeyboard(sig.UserID)))
	s.log.Info("help signal broadcast",
		zap.String("signal_id", sig.ID),
		zap.Int64("user_id", sig.UserID),
		zap.Int("attempts", report.Attempts()),
		zap.Int("delivered", report.Delivered()))

	if report.Delivered() == 0 {
		return dialog.Prompt{}, errors.Wrapf(ErrUnreachable, "signal %s", sig.ID)
	}
	return dialog.Prompt{Text: signalSentText(report.Delivered())}, nil
}

// signalRecipients is the administrator followed by every approved defender.
func (s *Service) signalRecipients(ctx context.Context) ([]int64, error) {
	approved, err := s.store.FindByStatus(ctx, models.StatusApproved)
	if err != nil {
		return nil, errors.Wrap(err, "load approved defenders")
	}
	ids := make([]int64, 0, len(approved)+1)
	ids = append(ids, s.adminID)
	for _, rec := range approved {
		ids = append(ids, rec.UserID)
	}
	return ids, nil
}

// Status returns the caller's record, or nil when there is none.
func (s *Service) Status(ctx context.Context, userID int64) (*models.ApplicantRecord, error) {
	rec, err := s.store.FindByKey(ctx, userID)
	return rec, errors.Wrap(err, "load status")
}

// Applicants lists every record for the administrator.
func (s *Service) Applicants(ctx context.Context, callerID int64) ([]*models.ApplicantRecord, error) {
	if !s.IsAdmin(callerID) {
		return nil, ErrForbidden
	}
	recs, err := s.store.ListAll(ctx)
	return recs, errors.Wrap(err, "list applicants")
}

// Decision is the outcome of a moderation action.
type Decision struct {
	Record *models.ApplicantRecord
	// Changed is false when the record already had the requested status.
	Changed bool
}

// Approve marks an applicant approved and congratulates them. Only the
// administrator may approve.
func (s *Service) Approve(ctx context.Context, callerID, applicantID int64) (Decision, error) {
	return s.decide(ctx, callerID, applicantID, models.StatusApproved, approvedText)
}

// Reject marks an applicant rejected and tells them so.
func (s *Service) Reject(ctx context.Context, callerID, applicantID int64) (Decision, error) {
	return s.decide(ctx, callerID, applicantID, models.StatusRejected, rejectedText)
}

func (s *Service) decide(ctx context.Context, callerID, applicantID int64, status models.Status, notice string) (Decision, error) {
	if !s.IsAdmin(callerID) {
		s.log.Warn("moderation denied", zap.Int64("user_id", callerID), zap.Int64("applicant_id", applicantID))
		return Decision{}, ErrForbidden
	}
	rec, err := s.store.FindByKey(ctx, applicantID)
	if err != nil {
		return Decision{}, errors.Wrap(err, "load applicant")
	}
	if rec == nil {
		return Decision{}, errors.Wrapf(ErrNotFound, "applicant %d", applicantID)
	}
	if rec.Status == status {
		return Decision{Record: rec}, nil
	}
	if err := s.store.SetStatus(ctx, applicantID, status); err != nil {
		return Decision{}, errors.Wrap(err, "update status")
	}
	rec.Status = status
	s.log.Info("applicant moderated", zap.Int64("applicant_id", applicantID), zap.String("status", string(status)))

	s.router.SendOne(ctx, applicantID, notice)
	return Decision{Record: rec, Changed: true}, nil
}

// Claim lets the administrator or an approved defender take an SOS case.
// Claims are not recorded, so several defenders may take the same case.
func (s *Service) Claim(ctx context.Context, claimerID int64, claimerUsername string, requesterID int64) error {
	var rec *models.ApplicantRecord
	if !s.IsAdmin(claimerID) {
		var err error
		rec, err = s.store.FindByKey(ctx, claimerID)
		if err != nil {
			return errors.Wrap(err, "load claimer")
		}
		if rec == nil || rec.Status != models.StatusApproved {
			s.log.Warn("claim denied", zap.Int64("user_id", claimerID), zap.Int64("requester_id", requesterID))
			return ErrForbidden
		}
	}

	name := displayName(rec, claimerUsername)
	s.router.SendOne(ctx, requesterID, claimedText(name), notify.WithHTML())
	if !s.IsAdmin(claimerID) {
		s.router.SendOne(ctx, s.adminID, claimedAdminText(name, claimerID, requesterID), notify.WithHTML())
	}
	s.log.Info("case claimed", zap.Int64("user_id", claimerID), zap.Int64("requester_id", requesterID))
	return nil
}
