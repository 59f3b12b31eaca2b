package tasks

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	TypeExpiryAudit = "license:expiry:audit"
)

type ExpiryAuditPayload struct{}

func NewExpiryAuditTask(opts ...asynq.Option) (*asynq.Task, error) {
	payload := ExpiryAuditPayload{}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	uniqueOpt := asynq.Unique(1 * time.Hour)
	allOpts := append(opts, uniqueOpt)

	return asynq.NewTask(TypeExpiryAudit, payloadBytes, allOpts...), nil
}
