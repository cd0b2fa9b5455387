package main

import (
	"log"

	"voxstream/internal/api"
	asrmanager "voxstream/internal/asr/manager"
	"voxstream/internal/asr/streaming"
	"voxstream/internal/asr/tdt"
	"voxstream/internal/asr/vocab"
	"voxstream/internal/config"
	"voxstream/internal/diarize/embedding"
	diarizemanager "voxstream/internal/diarize/manager"
	"voxstream/internal/diarize/segmentation"
	"voxstream/internal/inference"
)

func main() {
	cfg := config.Load()

	unit := computeUnit(cfg.ComputeUnit)

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
	proc.OverlapSeconds = cfg.RightContextSeconds

	asrMgr, err := asrmanager.New(proc)
	if err != nil {
		log.Fatal("build asr manager:", err)
	}

	extractor, err := embedding.NewExtractor(embedding.Config{
		ModelPath:  cfg.EmbeddingModelPath,
		NumThreads: 1,
		Provider:   computeProvider(cfg.ComputeUnit),
	})
	if err != nil {
		log.Fatal("load embedding model:", err)
	}
	defer extractor.Close()

	segmenter := segmentation.NewProcessor(segModel)
	diarizeMgr := diarizemanager.New(segmenter, extractor,
		diarizemanager.WithTrackerThresholds(cfg.SpeakerThreshold, cfg.EmbeddingThreshold, cfg.MinSpeechDuration),
	)

	server := api.NewServer(cfg, asrMgr, diarizeMgr)

	log.Println("starting voxstream")
	server.Start()
}

func computeUnit(flag string) inference.ComputeUnit {
	switch flag {
	case "cpu":
		return inference.ComputeCPUOnly
	case "cpu+gpu":
		return inference.ComputeCPUAndGPU
	case "cpu+accelerator":
		return inference.ComputeCPUAndAccelerator
	default:
		return inference.ComputeAny
	}
}

func computeProvider(flag string) string {
	if flag == "cpu" {
		return "cpu"
	}
	return "coreml"
}
