// Package httpapi exposes bebo's local REST surface: the legacy
// whiteboard API (messages/*), the newer /message resource, and a
// handful of operational endpoints (uuid, connected, seeds, version).
// It holds no business logic of its own; every handler is a thin
// adapter onto pkg/overlay and pkg/store.
package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/SRI-CSL/prism-sub001/pkg/overlay"
	"github.com/SRI-CSL/prism-sub001/pkg/store"
	"github.com/SRI-CSL/prism-sub001/pkg/wire"
)

// MaxGetCount bounds how many messages a single /message GET request
// can return, regardless of the requested count.
const MaxGetCount = overlay.MaxGetCount

// Server adapts an overlay.Server and its store onto HTTP.
type Server struct {
	overlay *overlay.Server
	store   *store.Store
	log     *zap.Logger
	version string
}

// New returns an http.Handler exposing every bebo REST endpoint.
func New(ov *overlay.Server, st *store.Store, log *zap.Logger, version string) http.Handler {
	s := &Server{overlay: ov, store: st, log: log, version: version}
	r := mux.NewRouter()

	r.HandleFunc("/uuid", s.handleUUID).Methods(http.MethodGet)
	r.HandleFunc("/version", s.handleVersion).Methods(http.MethodGet)
	r.HandleFunc("/connected", s.handleConnected).Methods(http.MethodGet)
	r.HandleFunc("/allneighborsnonempty", s.handleAllNeighborsNonEmpty).Methods(http.MethodGet)
	r.HandleFunc("/neighbor/{address}", s.handleDeleteNeighbor).Methods(http.MethodDelete)
	r.HandleFunc("/seeds", s.handleSeeds).Methods(http.MethodGet)
	r.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)

	r.HandleFunc("/messages/write/", s.handleWrite).Methods(http.MethodPost)
	r.HandleFunc("/messages/writeWithTimeout/{timeoutMins}/", s.handleWriteWithTimeout).Methods(http.MethodPost)
	r.HandleFunc("/messages/nextsequence", s.handleNextSequence).Methods(http.MethodGet)
	r.HandleFunc("/messages/readone/{seq:[0-9]+}", s.handleReadOne).Methods(http.MethodGet)
	r.HandleFunc("/messages/read/", s.handleRead).Methods(http.MethodGet)
	r.HandleFunc("/messages/read/{listenerID}", s.handleReadFrom).Methods(http.MethodGet)
	r.HandleFunc("/messages/explain/{seq:[0-9]+}", s.handleExplain).Methods(http.MethodGet)
	r.HandleFunc("/flush", s.handleFlush).Methods(http.MethodGet)

	r.HandleFunc("/message", s.handleMessageGet).Methods(http.MethodGet)
	r.HandleFunc("/message", s.handleMessagePost).Methods(http.MethodPost)

	return r
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleUUID(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"uuid": s.store.State().UUID})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": s.version})
}

func (s *Server) handleConnected(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte(strconv.FormatInt(s.overlay.ConnectedNeighbors(), 10)))
}

func (s *Server) handleAllNeighborsNonEmpty(w http.ResponseWriter, r *http.Request) {
	if s.overlay.AllNeighborsNonEmpty() {
		w.Write([]byte("1"))
	} else {
		w.Write([]byte("0"))
	}
}

func (s *Server) handleDeleteNeighbor(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	if s.overlay.DeleteNeighbor(r.Context(), address) {
		w.WriteHeader(http.StatusOK)
		return
	}
	w.WriteHeader(http.StatusNotFound)
}

func (s *Server) handleSeeds(w http.ResponseWriter, r *http.Request) {
	seeds := s.overlay.Seeds
	all := make([]string, 0)
	if seeds != nil {
		for addr := range seeds.All {
			all = append(all, addr)
		}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"seeds": all})
}

type indexResponse struct {
	Version  string       `json:"version"`
	UUID     string       `json:"uuid"`
	Messages []indexEntry `json:"messages"`
	Time     string       `json:"time"`
}

type indexEntry struct {
	ID   uint64 `json:"id"`
	Kind string `json:"kind"`
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	version := s.version
	if version == "" {
		version = "N/A"
	}
	st := s.store.State()
	var entries []indexEntry
	if st.HasRange {
		first := st.Greatest
		if st.Greatest > 50 {
			first = st.Greatest - 49
		} else {
			first = 1
		}
		for _, e := range s.store.GetRange(first, 50) {
			entries = append(entries, indexEntry{ID: e.Seq, Kind: kindOf(e.Message.Payload)})
		}
	}
	writeJSON(w, http.StatusOK, indexResponse{
		Version:  version,
		UUID:     st.UUID,
		Messages: entries,
		Time:     time.Now().UTC().Format("2006-01-02 15:04:05"),
	})
}

func (s *Server) handleWrite(w http.ResponseWriter, r *http.Request) {
	data, err := readBody(r)
	if err != nil {
		s.logErr("write: bad body", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	seq, _ := s.overlay.Inject(wire.NewRelayMessage(data, true), nil)
	writeJSON(w, http.StatusCreated, map[string]uint64{"messageId": seq})
}

func (s *Server) handleWriteWithTimeout(w http.ResponseWriter, r *http.Request) {
	// The timeout is accepted for API compatibility but otherwise
	// ignored: the store does not support per-message expiration.
	timeoutMinsText := mux.Vars(r)["timeoutMins"]
	timeoutMins, err := strconv.ParseFloat(timeoutMinsText, 64)
	if err != nil {
		http.Error(w, "bad timeout", http.StatusBadRequest)
		return
	}
	data, err := readBody(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	seq, _ := s.overlay.Inject(wire.NewRelayMessage(data, true), nil)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"messageId":   seq,
		"timeoutSecs": int(timeoutMins * 60),
	})
}

func (s *Server) handleNextSequence(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte(strconv.FormatUint(s.store.NextSequence(), 10)))
}

func (s *Server) handleReadOne(w http.ResponseWriter, r *http.Request) {
	seq, err := strconv.ParseUint(mux.Vars(r)["seq"], 10, 64)
	if err != nil {
		http.Error(w, "bad sequence number", http.StatusBadRequest)
		return
	}
	message, ok := s.store.GetBySeq(seq)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", message.MimeType())
	w.Write(message.Payload)
}

func (s *Server) handleRead(w http.ResponseWriter, r *http.Request) {
	listenerID := r.RemoteAddr
	s.readFrom(w, listenerID)
}

func (s *Server) handleReadFrom(w http.ResponseWriter, r *http.Request) {
	s.readFrom(w, mux.Vars(r)["listenerID"])
}

func (s *Server) readFrom(w http.ResponseWriter, listenerID string) {
	messages := s.store.MessagesForListener(listenerID)
	status := http.StatusNoContent
	if len(messages) > 0 {
		status = http.StatusOK
	}
	out := make([][3]string, 0, len(messages))
	for _, m := range messages {
		out = append(out, [3]string{m.MimeType(), m.ToJSON(), ""})
	}
	writeJSON(w, status, out)
}

func (s *Server) handleExplain(w http.ResponseWriter, r *http.Request) {
	seq, err := strconv.ParseUint(mux.Vars(r)["seq"], 10, 64)
	if err != nil {
		http.Error(w, "bad sequence number", http.StatusBadRequest)
		return
	}
	message, ok := s.store.GetBySeq(seq)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if s.overlay.HexMode {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte(hexdump(message.Payload)))
		return
	}
	if isJPEG(message.Payload) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write(message.Payload)
		return
	}
	decoded, err := explain(message.Payload)
	if err != nil {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte(hexdump(message.Payload)))
		return
	}
	writeJSON(w, http.StatusOK, decoded)
}

func (s *Server) handleFlush(w http.ResponseWriter, r *http.Request) {
	s.store.Flush()
	http.Redirect(w, r, "/", http.StatusFound)
}

func (s *Server) handleMessageGet(w http.ResponseWriter, r *http.Request) {
	first := queryUint(r, "first", 0)
	count := queryUint(r, "count", 1)
	if count > MaxGetCount {
		count = MaxGetCount
	}
	entries := s.store.GetRange(first, count)
	st := s.store.State()
	messages := make([]map[string]interface{}, 0, len(entries))
	for _, e := range entries {
		messages = append(messages, map[string]interface{}{
			"id":      e.Seq,
			"message": e.Message.ToJSON(),
		})
	}
	response := map[string]interface{}{
		"uuid":     st.UUID,
		"messages": messages,
	}
	if st.HasRange {
		response["least"] = st.Least
		response["greatest"] = st.Greatest
	}
	writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleMessagePost(w http.ResponseWriter, r *http.Request) {
	data, err := readBody(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	seq, created := s.overlay.Inject(wire.NewRelayMessage(data, true), nil)
	st := s.store.State()
	response := map[string]interface{}{
		"uuid": st.UUID,
		"id":   seq,
	}
	if st.HasRange {
		response["least"] = st.Least
		response["greatest"] = st.Greatest
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, response)
}

func readBody(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(r.Body)
}

func (s *Server) logErr(msg string, err error) {
	if s.log == nil {
		return
	}
	s.log.Warn(msg, zap.Error(err))
}

func queryUint(r *http.Request, key string, def uint64) uint64 {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}
