package task

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// ReportJob runs one ReportRequest through an Executor.
type ReportJob struct {
	req      ReportRequest
	executor *Executor
}

var _ Job = (*ReportJob)(nil)

// NewReportJob binds req to executor.
func NewReportJob(req ReportRequest, executor *Executor) *ReportJob {
	return &ReportJob{req: req, executor: executor}
}

// ID returns the task id of the request.
func (j *ReportJob) ID() uuid.UUID {
	return j.req.TaskID
}

// Type returns TaskTypeReportGeneration.
func (j *ReportJob) Type() string {
	return TaskTypeReportGeneration
}

// Payload returns the JSON encoded request.
func (j *ReportJob) Payload() []byte {
	payload, err := EncodeReportRequest(j.req)
	if err != nil {
		return nil
	}
	return payload
}

// Execute runs the report pipeline.
func (j *ReportJob) Execute(ctx context.Context) error {
	return j.executor.Execute(ctx, j.req)
}

// EncodeReportRequest serializes req for a queue payload.
func EncodeReportRequest(req ReportRequest) ([]byte, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode report request: %w", err)
	}
	return payload, nil
}

// DecodeReportRequest parses a payload produced by EncodeReportRequest.
func DecodeReportRequest(payload []byte) (ReportRequest, error) {
	var req ReportRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return ReportRequest{}, fmt.Errorf("%w: decode payload: %w", ErrInvalidRequest, err)
	}
	if err := req.Validate(); err != nil {
		return ReportRequest{}, err
	}
	return req, nil
}
