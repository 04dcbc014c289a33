package freight

import (
	"io"

	"github.com/sirupsen/logrus"
)

// Outcome is the structured result of a mutation, handed to whatever
// presents it (toast, HTTP response, log line). The engine never renders.
type Outcome struct {
	OK      bool   `json:"ok"`
	Op      string `json:"op"`
	Kind    Kind   `json:"kind,omitempty"`
	Message string `json:"message"`
}

// Notifier receives outcomes after every mutation.
type Notifier interface {
	Notify(Outcome)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Outcome)

func (f NotifierFunc) Notify(o Outcome) { f(o) }

// OutcomeOf builds the outcome for op given its error.
func OutcomeOf(op string, err error, success string) Outcome {
	if err == nil {
		return Outcome{OK: true, Op: op, Message: success}
	}
	return Outcome{OK: false, Op: op, Kind: KindOf(err), Message: err.Error()}
}

func notify(n Notifier, op string, err error, success string) {
	if n != nil {
		n.Notify(OutcomeOf(op, err, success))
	}
}

// LogNotifier writes outcomes to a logrus logger.
type LogNotifier struct {
	Log logrus.FieldLogger
}

func (n LogNotifier) Notify(o Outcome) {
	entry := n.Log.WithFields(logrus.Fields{"op": o.Op, "ok": o.OK})
	if o.OK {
		entry.Info(o.Message)
		return
	}
	entry.WithField("kind", o.Kind).Warn(o.Message)
}

func loggerOrDiscard(l logrus.FieldLogger) logrus.FieldLogger {
	if l != nil {
		return l
	}
	discard := logrus.New()
	discard.SetOutput(io.Discard)
	return discard
}
