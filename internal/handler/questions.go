package handler

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/pavelanni/interviewer/internal/model"
	"github.com/pavelanni/interviewer/internal/store"
)

// QuestionSink receives freshly imported questions, typically the
// in-memory cache.
type QuestionSink interface {
	Insert(q model.Question) model.Question
}

func (h *Handler) handleUploadQuestions(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		http.Error(w, "file too large", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("questions_file")
	if err != nil {
		http.Error(w, "no file uploaded", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "failed to read file", http.StatusInternalServerError)
		return
	}

	questions, err := store.ParseQuestionBank(data)
	if err != nil {
		http.Error(w, "invalid question bank: "+err.Error(), http.StatusBadRequest)
		return
	}
	res, err := h.store.ImportQuestionBank(r.Context(), header.Filename, data)
	if err != nil {
		slog.Error("failed to import questions", "filename", header.Filename, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if res.Status == store.ImportDone && h.sink != nil {
		for _, q := range questions {
			h.sink.Insert(q)
		}
	}

	slog.Info("uploaded questions", "filename", header.Filename, "status", res.Status, "count", res.Count)
	status := http.StatusCreated
	if res.Status != store.ImportDone {
		status = http.StatusOK
	}
	writeJSON(w, status, res)
}
