// Package http provides http transport for ingest
package http

import (
	"io"
	stdhttp "net/http"

	perr "cashgate/internal/platform/errors"
	"cashgate/internal/platform/logger"
	pnet "cashgate/internal/platform/net"
	phttp "cashgate/internal/platform/net/http"
	"cashgate/internal/platform/net/http/bind"
	"cashgate/internal/services/ingest/domain"
)

// multipart memory ceiling; larger files spill to temp storage which is
// removed with the request
const maxMultipartMemory = 64 << 20

// Register mounts the ingest routes
func Register(r phttp.Router, svc domain.IngesterPort) {
	h := &handlers{svc: svc}
	r.Route("/v1/ingest", func(r phttp.Router) {
		r.Post("/files", h.files)
		r.Post("/feeds", h.feeds)
	})
}

type handlers struct{ svc domain.IngesterPort }

// @Summary Ingest a tabular batch (multipart)
// @Tags ingest
// @Accept mpfd
// @Produce json
// @Success 200 {object} domain.IngestOutput "derived-only result"
// @Router /v1/ingest/files [post]
func (h *handlers) files(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		writeResult(w, r, nil, perr.JSONErrf("invalid multipart form"))
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	in := domain.FileIngestInput{
		SubjectRef:        r.FormValue("subject_ref"),
		SubjectRefVersion: r.FormValue("subject_ref_version"),
		Source:            r.FormValue("source"),
		InputStartDate:    r.FormValue("input_start_date"),
		InputEndDate:      r.FormValue("input_end_date"),
	}

	f, hdr, err := r.FormFile("file")
	if err != nil {
		writeResult(w, r, nil, perr.Newf(perr.ErrorCodeValidation, "file is required"))
		return
	}
	defer func() { _ = f.Close() }()

	raw, err := io.ReadAll(f)
	if err != nil {
		writeResult(w, r, nil, perr.Wrap(err, perr.ErrorCodeUnknown, "read upload"))
		return
	}
	in.Filename = hdr.Filename
	in.Raw = raw

	ctx := logger.WithRequest(r.Context(), pnet.RequestID(r.Context()), in.SubjectRef)
	out, err := h.svc.IngestFile(ctx, in)
	writeResult(w, r, out, err)
}

// @Summary Ingest a structured event feed
// @Tags ingest
// @Accept json
// @Produce json
// @Param payload body domain.FeedIngestInput true "Feed batch"
// @Success 200 {object} domain.IngestOutput "derived-only result"
// @Router /v1/ingest/feeds [post]
func (h *handlers) feeds(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	in, err := bind.ParseJSON[domain.FeedIngestInput](r)
	if err != nil {
		writeResult(w, r, nil, err)
		return
	}

	ctx := logger.WithRequest(r.Context(), pnet.RequestID(r.Context()), in.SubjectRef)
	out, err := h.svc.IngestFeed(ctx, in)
	writeResult(w, r, out, err)
}

// writeResult maps pipeline outcomes onto the envelope. Batch rejections keep
// their counts: the partial output rides along as data so the caller sees the
// reason code and the rejection breakdown together
func writeResult(w stdhttp.ResponseWriter, r *stdhttp.Request, out *domain.IngestOutput, err error) {
	if err == nil {
		phttp.RespondOK(w, r, out)
		return
	}

	status := perr.HTTPStatus(err)
	wire := perr.WireFrom(err)
	env := phttp.Envelope{
		StatusCode: status,
		Status:     stdhttp.StatusText(status),
		Code:       wire.Code,
		Error:      wire.Message,
		RequestID:  pnet.RequestID(r.Context()),
	}
	if out != nil && perr.IsCode(err, perr.ErrorCodeBatchRejected) {
		env.Data = out
	}
	phttp.JSON(w, status, env)
}
