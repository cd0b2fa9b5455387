package api

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	asrmanager "voxstream/internal/asr/manager"
	"voxstream/internal/asrtypes"
	"voxstream/internal/config"
	diarizemanager "voxstream/internal/diarize/manager"
	"voxstream/internal/errs"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type sendFunc func(Message) error

// streamSession is one source's in-flight streaming.start/stream_audio
// buffer. A source has at most one active session; starting a new one on
// an already-active source replaces it.
type streamSession struct {
	samples   []float32
	cancelled bool
}

// Server hosts the websocket streaming endpoint and a second websocket
// endpoint for the control plane (cancel/reset_state/status) over the ASR
// and Diarizer managers, mirroring the teacher's split between an audio
// transport and a control transport without carrying its gRPC plumbing:
// a companion process speaks the same JSON Message envelope either way,
// just over a plain websocket instead of a hand-rolled gRPC codec.
type Server struct {
	Config   *config.Config
	ASR      *asrmanager.Manager
	Diarizer *diarizemanager.Manager

	sessMu   sync.Mutex
	sessions map[asrtypes.Source]*streamSession
}

// NewServer wires a Server over already-constructed managers.
func NewServer(cfg *config.Config, asr *asrmanager.Manager, diarizer *diarizemanager.Manager) *Server {
	return &Server{
		Config:   cfg,
		ASR:      asr,
		Diarizer: diarizer,
		sessions: make(map[asrtypes.Source]*streamSession),
	}
}

// Start runs the HTTP/websocket listener hosting the audio stream, the
// control plane, and the one-shot diarize endpoint.
func (s *Server) Start() {
	http.HandleFunc("/v1/stream", s.handleStream)
	http.HandleFunc("/v1/control", s.handleControl)
	http.HandleFunc("/v1/diarize", s.handleDiarize)

	log.Printf("voxstream listening on :%s", s.Config.Port)
	if err := http.ListenAndServe(":"+s.Config.Port, nil); err != nil {
		log.Fatal("ListenAndServe:", err)
	}
}

// handleStream upgrades to a websocket and runs the
// start/stream_audio/finish/cancel loop: JSON text frames are control
// messages, binary frames are raw little-endian float32 PCM at 16kHz.
// Mirrors server.go's handleWebSocket upgrade-then-loop shape, but a
// connection here is scoped to a single source for its lifetime instead
// of fanning out to a shared client registry.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("upgrade:", err)
		return
	}
	defer conn.Close()

	send := func(msg Message) error { return conn.WriteJSON(msg) }

	var source asrtypes.Source
	var started bool

	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if started {
				s.endSession(source)
			}
			return
		}

		switch kind {
		case websocket.TextMessage:
			var ctrl Message
			if err := json.Unmarshal(data, &ctrl); err != nil {
				send(Message{Type: "error", Error: err.Error()})
				continue
			}

			switch ctrl.Type {
			case "start":
				source = asrtypes.Source(ctrl.Source)
				s.startSession(source)
				started = true
				send(Message{Type: "started", Source: ctrl.Source})

			case "finish":
				if !started {
					send(Message{Type: "error", Error: "finish called before start"})
					continue
				}
				result, cancelled, err := s.finishSession(source)
				started = false
				if cancelled {
					send(Message{Type: "cancelled", Source: string(source)})
					continue
				}
				if err != nil {
					send(Message{Type: "error", Error: err.Error(), Source: string(source)})
					continue
				}
				send(Message{
					Type:            "result",
					Source:          string(source),
					Text:            result.Text,
					Confidence:      result.Confidence,
					DurationS:       result.DurationS,
					ProcessingTimeS: result.ProcessingTimeS,
					TokenTimings:    result.TokenTimings,
				})
				return

			case "cancel":
				if started {
					s.cancelSession(source)
				}
				send(Message{Type: "cancelled", Source: string(source)})
				return

			default:
				send(Message{Type: "error", Error: fmt.Sprintf("unknown control message %q", ctrl.Type)})
			}

		case websocket.BinaryMessage:
			if !started {
				send(Message{Type: "error", Error: "stream_audio called before start"})
				continue
			}
			s.appendAudio(source, bytesToFloat32(data))
		}
	}
}

func (s *Server) startSession(source asrtypes.Source) {
	s.sessMu.Lock()
	defer s.sessMu.Unlock()
	s.sessions[source] = &streamSession{}
}

func (s *Server) appendAudio(source asrtypes.Source, samples []float32) {
	s.sessMu.Lock()
	defer s.sessMu.Unlock()
	if sess, ok := s.sessions[source]; ok {
		sess.samples = append(sess.samples, samples...)
	}
}

// cancelSession marks source's session cancelled. The flag is checked when
// finish arrives, before transcription starts; a transcription already
// running in finishSession is not interrupted, and predictor state is
// never rewound.
func (s *Server) cancelSession(source asrtypes.Source) {
	s.sessMu.Lock()
	defer s.sessMu.Unlock()
	if sess, ok := s.sessions[source]; ok {
		sess.cancelled = true
	}
}

func (s *Server) endSession(source asrtypes.Source) {
	s.sessMu.Lock()
	defer s.sessMu.Unlock()
	delete(s.sessions, source)
}

// finishSession runs transcribe over the accumulated buffer unless cancel
// arrived first, in which case the buffer is discarded without touching
// the ASR manager's predictor state for source.
func (s *Server) finishSession(source asrtypes.Source) (asrtypes.Result, bool, error) {
	s.sessMu.Lock()
	sess, ok := s.sessions[source]
	delete(s.sessions, source)
	s.sessMu.Unlock()

	if !ok {
		return asrtypes.Result{}, false, fmt.Errorf("no active session for source %q", source)
	}
	if sess.cancelled {
		return asrtypes.Result{}, true, nil
	}

	result, err := s.ASR.Transcribe(sess.samples, source)
	return result, false, err
}

// handleDiarize is a one-shot HTTP endpoint for diarize(samples, sample_rate):
// the body is raw little-endian float32 PCM at 16kHz.
func (s *Server) handleDiarize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	samples := bytesToFloat32(body)

	result, err := s.Diarizer.Diarize(samples, asrmanager.SampleRate)
	if err != nil {
		writeJSONError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(Message{
		Type:            "diarize_result",
		Segments:        result.Segments,
		SpeakerRegistry: result.SpeakerRegistry,
	})
}

// handleControl upgrades to a websocket carrying cancel/reset_state/status
// control messages, for a companion process (e.g. a desktop shell) that
// wants to manage streaming sessions without joining the audio transport.
func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("upgrade control:", err)
		return
	}
	defer conn.Close()

	var sendMu sync.Mutex
	send := func(msg Message) error {
		sendMu.Lock()
		defer sendMu.Unlock()
		return conn.WriteJSON(msg)
	}

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		s.processControlMessage(send, msg)
	}
}

func (s *Server) processControlMessage(send sendFunc, msg Message) {
	switch msg.Type {
	case "cancel":
		src := asrtypes.Source(msg.Source)
		s.cancelSession(src)
		send(Message{Type: "cancelled", Source: msg.Source})

	case "reset_state":
		src := asrtypes.Source(msg.Source)
		if err := s.ASR.ResetState(src); err != nil {
			send(Message{Type: "error", Error: err.Error(), Source: msg.Source})
			return
		}
		send(Message{Type: "reset_state_ok", Source: msg.Source})

	case "status":
		s.sessMu.Lock()
		statuses := make([]SourceStatus, 0, len(s.sessions))
		for src, sess := range s.sessions {
			statuses = append(statuses, SourceStatus{
				Source:  src,
				Active:  !sess.cancelled,
				Samples: len(sess.samples),
			})
		}
		s.sessMu.Unlock()
		send(Message{Type: "status", Sources: statuses})

	default:
		send(Message{Type: "error", Error: fmt.Sprintf("unknown control message %q", msg.Type)})
	}
}

func bytesToFloat32(data []byte) []float32 {
	n := len(data) / 4
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		bits := binary.LittleEndian.Uint32(data[i*4 : i*4+4])
		out[i] = math.Float32frombits(bits)
	}
	return out
}

func writeJSONError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if err == errs.ErrInvalidAudioData {
		status = http.StatusBadRequest
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Message{Type: "error", Error: err.Error()})
}
