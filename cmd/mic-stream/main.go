// mic-stream captures the default microphone and drives it through the
// voxstream websocket streaming endpoint, start to finish. Grounded on
// cmd/testmic's malgo capture loop (teacher) adapted from a WAV-file dump
// to a live /v1/stream client.
package main

import (
	"bytes"
	"encoding/binary"
	"flag"
	"log"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"voxstream/internal/audio"
)

func main() {
	addr := flag.String("addr", "ws://localhost:8080/v1/stream", "voxstream streaming endpoint")
	source := flag.String("source", "microphone", "audio source label: microphone or system")
	flag.Parse()

	conn, _, err := websocket.DefaultDialer.Dial(*addr, nil)
	if err != nil {
		log.Fatalf("dial %s: %v", *addr, err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(map[string]string{"type": "start", "source": *source}); err != nil {
		log.Fatalf("send start: %v", err)
	}

	cap, err := audio.NewCapture()
	if err != nil {
		log.Fatalf("init capture: %v", err)
	}
	defer cap.Close()

	sendMu := make(chan struct{}, 1)
	sendMu <- struct{}{}

	onSamples := func(samples []float32) {
		<-sendMu
		defer func() { sendMu <- struct{}{} }()

		buf := new(bytes.Buffer)
		for _, s := range samples {
			binary.Write(buf, binary.LittleEndian, math.Float32bits(s))
		}
		if err := conn.WriteMessage(websocket.BinaryMessage, buf.Bytes()); err != nil {
			log.Printf("stream_audio: %v", err)
		}
	}

	if err := cap.Start(nil, onSamples); err != nil {
		log.Fatalf("start capture: %v", err)
	}

	log.Println("streaming microphone audio, press Ctrl+C to finish")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	if err := conn.WriteJSON(map[string]string{"type": "finish"}); err != nil {
		log.Fatalf("send finish: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	var result map[string]interface{}
	if err := conn.ReadJSON(&result); err != nil {
		log.Fatalf("read result: %v", err)
	}
	log.Printf("transcription result: %+v", result)
}
