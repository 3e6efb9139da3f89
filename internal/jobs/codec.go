package jobs

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const maxMicros = 999_999

// taskBody and doneBody are the wire schema. Pointer fields let decoding tell
// a missing field apart from a zero value.
type taskBody struct {
	UUID   *string  `json:"uuid"`
	Sender *string  `json:"sender"`
	SentDT *int64   `json:"sent_dt"`
	SentUS *int64   `json:"sent_us"`
	Param  *float64 `json:"param"`
}

type doneBody struct {
	taskBody
	GotDT  *int64  `json:"got_dt"`
	GotUS  *int64  `json:"got_us"`
	DoneDT *int64  `json:"done_dt"`
	DoneUS *int64  `json:"done_us"`
	Worker *string `json:"worker"`
	Result *int64  `json:"result"`
}

var (
	taskFields = fieldSet("uuid", "sender", "sent_dt", "sent_us", "param")
	doneFields = fieldSet("uuid", "sender", "sent_dt", "sent_us", "param",
		"got_dt", "got_us", "done_dt", "done_us", "worker", "result")
)

func fieldSet(names ...string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}

// Encode serializes a task to its message body. Timestamps are truncated to the
// wire resolution; a param outside [0,1) is an error.
func Encode(t Task) ([]byte, error) {
	if err := checkParam(t.Param); err != nil {
		return nil, err
	}
	return json.Marshal(taskToBody(t))
}

// EncodeDone serializes a completed task.
func EncodeDone(d DoneTask) ([]byte, error) {
	if err := checkParam(d.Param); err != nil {
		return nil, err
	}
	gotDT, gotUS := splitTime(Timestamp(d.Got))
	doneDT, doneUS := splitTime(Timestamp(d.Done))
	return json.Marshal(doneBody{
		taskBody: taskToBody(d.Task),
		GotDT:    &gotDT,
		GotUS:    &gotUS,
		DoneDT:   &doneDT,
		DoneUS:   &doneUS,
		Worker:   &d.Worker,
		Result:   &d.Result,
	})
}

// DecodeTask parses a task body. Unknown or missing fields are rejected.
func DecodeTask(body []byte) (Task, error) {
	var b taskBody
	if err := strictUnmarshal(body, &b, taskFields); err != nil {
		return Task{}, err
	}
	return b.task()
}

// DecodeDone parses a completed task body.
func DecodeDone(body []byte) (DoneTask, error) {
	var b doneBody
	if err := strictUnmarshal(body, &b, doneFields); err != nil {
		return DoneTask{}, err
	}

	t, err := b.task()
	if err != nil {
		return DoneTask{}, err
	}
	got, err := joinTime("got", b.GotDT, b.GotUS)
	if err != nil {
		return DoneTask{}, err
	}
	done, err := joinTime("done", b.DoneDT, b.DoneUS)
	if err != nil {
		return DoneTask{}, err
	}
	if b.Worker == nil {
		return DoneTask{}, &DecodeError{Field: "worker", Err: ErrMissingField}
	}
	if *b.Worker == "" {
		return DoneTask{}, &DecodeError{Field: "worker", Err: ErrInvalidValue}
	}
	if b.Result == nil {
		return DoneTask{}, &DecodeError{Field: "result", Err: ErrMissingField}
	}

	return DoneTask{
		Task:   t,
		Got:    got,
		Done:   done,
		Worker: *b.Worker,
		Result: *b.Result,
	}, nil
}

// Decode parses either body kind. A body carrying completion fields is a DoneTask.
func Decode(body []byte) (Record, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, &DecodeError{Err: err}
	}
	if _, ok := fields["done_dt"]; ok {
		return DecodeDone(body)
	}
	if _, ok := fields["worker"]; ok {
		return DecodeDone(body)
	}
	return DecodeTask(body)
}

func taskToBody(t Task) taskBody {
	sentDT, sentUS := splitTime(Timestamp(t.Sent))
	return taskBody{
		UUID:   &t.UUID,
		Sender: &t.Sender,
		SentDT: &sentDT,
		SentUS: &sentUS,
		Param:  &t.Param,
	}
}

func (b taskBody) task() (Task, error) {
	if b.UUID == nil {
		return Task{}, &DecodeError{Field: "uuid", Err: ErrMissingField}
	}
	if _, err := uuid.Parse(*b.UUID); err != nil {
		return Task{}, &DecodeError{Field: "uuid", Err: fmt.Errorf("%w: %v", ErrInvalidValue, err)}
	}
	if b.Sender == nil {
		return Task{}, &DecodeError{Field: "sender", Err: ErrMissingField}
	}
	if *b.Sender == "" {
		return Task{}, &DecodeError{Field: "sender", Err: ErrInvalidValue}
	}
	sent, err := joinTime("sent", b.SentDT, b.SentUS)
	if err != nil {
		return Task{}, err
	}
	if b.Param == nil {
		return Task{}, &DecodeError{Field: "param", Err: ErrMissingField}
	}
	if *b.Param < 0 || *b.Param >= 1 {
		return Task{}, &DecodeError{Field: "param", Err: ErrOutOfRange}
	}

	return Task{
		UUID:   *b.UUID,
		Sender: *b.Sender,
		Sent:   sent,
		Param:  *b.Param,
	}, nil
}

func checkParam(param float64) error {
	if param < 0 || param >= 1 {
		return fmt.Errorf("encode task: param %v: %w", param, ErrOutOfRange)
	}
	return nil
}

// strictUnmarshal decodes a single JSON object whose keys are exactly drawn from
// allowed. encoding/json folds key case and keeps the last duplicate, so keys are
// checked on the raw object first.
func strictUnmarshal(body []byte, v any, allowed map[string]bool) error {
	if err := checkKeys(body, allowed); err != nil {
		return err
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return &DecodeError{Err: err}
	}
	if dec.More() {
		return &DecodeError{Err: errors.New("trailing data after body")}
	}
	return nil
}

func checkKeys(body []byte, allowed map[string]bool) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	tok, err := dec.Token()
	if err != nil {
		return &DecodeError{Err: err}
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return &DecodeError{Err: errors.New("body is not a JSON object")}
	}

	seen := make(map[string]bool, len(allowed))
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return &DecodeError{Err: err}
		}
		key, _ := tok.(string)
		if !allowed[key] {
			return &DecodeError{Field: key, Err: ErrUnknownField}
		}
		if seen[key] {
			return &DecodeError{Field: key, Err: ErrDuplicateField}
		}
		seen[key] = true

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return &DecodeError{Err: err}
		}
	}
	if _, err := dec.Token(); err != nil {
		return &DecodeError{Err: err}
	}
	return nil
}

// splitTime returns epoch seconds (UTC, no leap seconds) and the microsecond remainder.
func splitTime(t time.Time) (int64, int64) {
	return t.Unix(), int64(t.Nanosecond() / 1000)
}

func joinTime(name string, dt, us *int64) (time.Time, error) {
	if dt == nil {
		return time.Time{}, &DecodeError{Field: name + "_dt", Err: ErrMissingField}
	}
	if us == nil {
		return time.Time{}, &DecodeError{Field: name + "_us", Err: ErrMissingField}
	}
	if *us < 0 || *us > maxMicros {
		return time.Time{}, &DecodeError{Field: name + "_us", Err: ErrOutOfRange}
	}
	return time.Unix(*dt, *us*int64(time.Microsecond)).UTC(), nil
}
