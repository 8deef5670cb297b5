package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sauvini/onboarding/core/registration"
)

var (
	sessionsStarted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_started_total",
		Help:      "Number of registration sessions started.",
	})

	wizardSteps = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "wizard_steps_total",
		Help:      "Number of advance attempts by role, step and result (advanced|refused).",
	}, []string{"role", "step", "result"})

	submissions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "submissions_total",
		Help:      "Number of registrations sent to the auth service by role and result.",
	}, []string{"role", "result"})

	verificationEmails = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "verification_emails_total",
		Help:      "Number of verification email requests by kind (auto|resend) and result.",
	}, []string{"kind", "result"})

	emailVerifications = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "email_verifications_total",
		Help:      "Number of verification token checks by result.",
	}, []string{"result"})
)

func init() {
	register(sessionsStarted, wizardSteps, submissions, verificationEmails, emailVerifications)
}

// Recorder reports the wizard events to Prometheus.
type Recorder struct{}

var _ registration.Metrics = Recorder{}

func NewRecorder() Recorder {
	MustRegister()
	return Recorder{}
}

func (Recorder) SessionStarted() {
	sessionsStarted.Inc()
}

func (Recorder) StepAdvanced(role registration.Role, step string) {
	wizardSteps.WithLabelValues(string(role), step, "advanced").Inc()
}

func (Recorder) StepRefused(role registration.Role, step string) {
	wizardSteps.WithLabelValues(string(role), step, "refused").Inc()
}

func (Recorder) Submitted(role registration.Role, ok bool) {
	submissions.WithLabelValues(string(role), result(ok)).Inc()
}

func (Recorder) VerificationSent(auto, ok bool) {
	kind := "resend"
	if auto {
		kind = "auto"
	}
	verificationEmails.WithLabelValues(kind, result(ok)).Inc()
}

func (Recorder) Verified(ok bool) {
	emailVerifications.WithLabelValues(result(ok)).Inc()
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
