package handler

import (
	"io"
	"net/http"

	"github.com/foomo/annotationserver/pkg/annotation"
	"github.com/foomo/annotationserver/pkg/metrics"
	"github.com/foomo/annotationserver/requests"
	"github.com/foomo/annotationserver/responses"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	codeInvalidKey = iota + 1
	codeInvalidJSON
	codeInternal
	codeImageTooLarge
)

func (h *HTTP) keys(w http.ResponseWriter, r *http.Request) {
	keys, err := h.store.Keys(r.Context())
	if err != nil {
		h.l.Error("failed to list keys", zap.Error(err))
		h.reply(w, http.StatusInternalServerError, responses.NewError(http.StatusInternalServerError, codeInternal, "internal error "+err.Error()))
		return
	}
	if keys == nil {
		keys = []string{}
	}
	h.reply(w, http.StatusOK, responses.Keys{Keys: keys})
}

func (h *HTTP) load(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["item"]
	if err := annotation.ValidateKey(key); err != nil {
		h.reply(w, http.StatusBadRequest, responses.NewError(http.StatusBadRequest, codeInvalidKey, err.Error()))
		return
	}

	res := h.store.Load(r.Context(), key)
	reply := responses.Load{
		Item:   key,
		Status: string(res.Status),
		Record: responses.Record{
			Text:  res.Record.Text,
			Image: res.Record.Image,
		},
	}
	if res.Err != nil {
		reply.Error = res.Err.Error()
	}
	h.reply(w, http.StatusOK, reply)
}

func (h *HTTP) save(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["item"]
	if err := annotation.ValidateKey(key); err != nil {
		h.reply(w, http.StatusBadRequest, responses.NewError(http.StatusBadRequest, codeInvalidKey, err.Error()))
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.reply(w, http.StatusBadRequest, responses.NewError(http.StatusBadRequest, codeInvalidJSON, "failed to read incoming request"))
		return
	}
	req := &requests.Save{}
	if err := json.Unmarshal(body, req); err != nil {
		h.l.Error("could not read incoming json", zap.Error(err))
		h.reply(w, http.StatusBadRequest, responses.NewError(http.StatusBadRequest, codeInvalidJSON, "could not read incoming json "+err.Error()))
		return
	}

	var upload *annotation.Upload
	if len(req.Image) > 0 {
		upload = &annotation.Upload{
			Name:        req.ImageName,
			ContentType: req.ImageType,
			Data:        req.Image,
		}
	}

	record, err := h.store.Save(r.Context(), key, req.Text, upload, req.PreviousImage)
	if err != nil {
		metrics.SaveCounter.WithLabelValues("api", "error").Inc()
		h.l.Error("an API error occurred", zap.String("item", key), zap.Error(err))
		status, code := http.StatusInternalServerError, codeInternal
		if errors.Is(err, annotation.ErrImageTooLarge) {
			status, code = http.StatusRequestEntityTooLarge, codeImageTooLarge
		}
		h.reply(w, status, responses.NewError(status, code, err.Error()))
		return
	}
	metrics.SaveCounter.WithLabelValues("api", "success").Inc()

	h.reply(w, http.StatusOK, responses.Save{
		Item: key,
		Record: responses.Record{
			Text:  record.Text,
			Image: record.Image,
		},
	})
}

// reply encodes v wrapped in a reply envelope
func (h *HTTP) reply(w http.ResponseWriter, status int, v interface{}) {
	bytes, err := json.Marshal(map[string]interface{}{
		"reply": v,
	})
	if err != nil {
		h.l.Error("could not encode reply", zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(bytes)
}
