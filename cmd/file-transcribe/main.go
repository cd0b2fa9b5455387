// file-transcribe runs the full transcribe+diarize pipeline over a local
// MP3 file, offline. Grounded on session/mp3_reader.go's pure-Go MP3
// decode (teacher) and cmd/testfull's one-shot batch-processing shape,
// adapted to call the ASR and Diarizer managers directly instead of
// writing to a session store.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	asrmanager "voxstream/internal/asr/manager"
	"voxstream/internal/asr/streaming"
	"voxstream/internal/asr/tdt"
	"voxstream/internal/asr/vocab"
	"voxstream/internal/asrtypes"
	"voxstream/internal/audio"
	"voxstream/internal/config"
	"voxstream/internal/diarize/embedding"
	diarizemanager "voxstream/internal/diarize/manager"
	"voxstream/internal/diarize/segmentation"
	"voxstream/internal/diarizetypes"
	"voxstream/internal/inference"
)

func main() {
	mp3Path := flag.String("mp3", "", "MP3 file to transcribe and diarize")
	exportSegmentsDir := flag.String("export-segments", "", "optional directory to write one MP3 per diarized segment")
	cfg := config.Load()

	flag.Parse()
	if *mp3Path == "" {
		log.Fatal("-mp3 is required")
	}

	samples, err := audio.DecodeMP3Mono16k(*mp3Path)
	if err != nil {
		log.Fatalf("decode mp3: %v", err)
	}

	unit := inference.ComputeAny
	if cfg.ComputeUnit == "cpu" {
		unit = inference.ComputeCPUOnly
	}

	mel, err := inference.NewOnnxModel("mel-spectrogram", cfg.MelModelPath, unit)
	if err != nil {
		log.Fatal("load mel model:", err)
	}
	defer mel.Close()
	encoder, err := inference.NewOnnxModel("encoder", cfg.EncoderModelPath, unit)
	if err != nil {
		log.Fatal("load encoder model:", err)
	}
	defer encoder.Close()
	predictor, err := inference.NewOnnxModel("predictor", cfg.PredictorModelPath, unit)
	if err != nil {
		log.Fatal("load predictor model:", err)
	}
	defer predictor.Close()
	joint, err := inference.NewOnnxModel("joint", cfg.JointModelPath, unit)
	if err != nil {
		log.Fatal("load joint model:", err)
	}
	defer joint.Close()
	segModel, err := inference.NewOnnxModel("segmentation", cfg.SegmentationModelPath, unit)
	if err != nil {
		log.Fatal("load segmentation model:", err)
	}
	defer segModel.Close()

	v, err := vocab.Load(cfg.VocabPath)
	if err != nil {
		log.Fatal("load vocabulary:", err)
	}

	decoder := tdt.NewDecoder(predictor, joint, v.Size(), tdt.DefaultDurationSet)
	proc := streaming.NewChunkProcessor(mel, encoder, decoder, v)
	asrMgr, err := asrmanager.New(proc)
	if err != nil {
		log.Fatal("build asr manager:", err)
	}

	extractor, err := embedding.NewExtractor(embedding.Config{ModelPath: cfg.EmbeddingModelPath, NumThreads: 1, Provider: "cpu"})
	if err != nil {
		log.Fatal("load embedding model:", err)
	}
	defer extractor.Close()
	segmenter := segmentation.NewProcessor(segModel)
	diarizeMgr := diarizemanager.New(segmenter, extractor)

	asrResult, err := asrMgr.Transcribe(samples, asrtypes.SourceMicrophone)
	if err != nil {
		log.Fatalf("transcribe: %v", err)
	}

	diarizeResult, err := diarizeMgr.Diarize(samples, audio.SampleRate)
	if err != nil {
		log.Fatalf("diarize: %v", err)
	}

	out := map[string]interface{}{"asr": asrResult, "diarization": diarizeResult}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		log.Fatalf("encode result: %v", err)
	}

	if *exportSegmentsDir != "" {
		if err := exportSegments(*exportSegmentsDir, samples, diarizeResult.Segments); err != nil {
			log.Fatalf("export segments: %v", err)
		}
	}
}

func exportSegments(dir string, samples []float32, segments []diarizetypes.TimedSpeakerSegment) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for i, seg := range segments {
		start := min(max(int(seg.StartS*audio.SampleRate), 0), len(samples))
		end := min(max(int(seg.EndS*audio.SampleRate), start), len(samples))
		w, err := audio.NewSegmentWriter(filepath.Join(dir, fmt.Sprintf("%03d_speaker%s.mp3", i, seg.SpeakerID)), audio.SampleRate)
		if err != nil {
			return err
		}
		w.Write(samples[start:end])
		if err := w.Close(); err != nil {
			return err
		}
	}
	return nil
}
