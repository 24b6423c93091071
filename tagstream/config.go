package main

import (
	"encoding/json"
	"fmt"
	"os"

	timetagger "github.com/next-exp/timetagger_go/pkg"
)

func LoadConfiguration(filename string) (timetagger.Configuration, error) {
	var config timetagger.Configuration

	// Set default values
	stream := timetagger.DefaultStreamConfig()
	sim := timetagger.DefaultSimulatorConfig()
	config.Verbosity = 0
	config.FileOut = "timetags.h5"
	config.WriteData = true
	config.CompressionLevel = 4
	config.NoDB = true
	config.Host = "localhost"
	config.User = "ttreader"
	config.Passwd = "readonly"
	config.DBName = "TIMETAGGER"
	config.FabricMHz = 307.2
	config.Channel = stream.Channel
	config.Threshold = stream.ThresholdVolts
	config.DeadTime = stream.DeadTimeSeconds
	config.Interpolation = stream.Interpolation
	config.ADCSamples = stream.ADCSamples
	config.SampleFilter = stream.SampleFilter
	config.Slope = stream.Slope
	config.Invert = stream.Invert
	config.Stride = stream.Stride
	config.StrideTimeout = stream.StrideTimeout.Seconds()
	config.NumReads = 10
	config.ArmsPerRead = 1000
	config.Multiples = 1
	config.ReadTimeout = 5
	config.NumExperiments = 1
	config.BinWidth = 1e-9
	config.NumBins = 100
	config.SimArmRate = sim.ArmRate
	config.SimTagsPerArm = sim.TagsPerArm
	config.SimArmMemSize = sim.ArmMemSize
	config.SimTagMemSize = sim.TagMemSize
	config.SimSeed = sim.Seed

	if filename == "" {
		return config, nil
	}
	data, err := os.ReadFile(filename)
	if err != nil {
		return config, err
	}
	err = json.Unmarshal(data, &config)
	if err != nil {
		return config, err
	}
	return config, nil
}

func simulatorConfig(config timetagger.Configuration) timetagger.SimulatorConfig {
	sim := timetagger.DefaultSimulatorConfig()
	sim.ArmRate = config.SimArmRate
	sim.TagsPerArm = config.SimTagsPerArm
	sim.ArmMemSize = config.SimArmMemSize
	sim.TagMemSize = config.SimTagMemSize
	sim.Seed = config.SimSeed
	return sim
}

func printConfiguration(config timetagger.Configuration, logger Logger) {
	logger.Info(fmt.Sprintf("File out: %s", config.FileOut), "config")
	logger.Info(fmt.Sprintf("Write data: %t", config.WriteData), "config")
	logger.Info(fmt.Sprintf("No DB: %t", config.NoDB), "config")
	logger.Info(fmt.Sprintf("Host: %s", config.Host), "config")
	logger.Info(fmt.Sprintf("DB name: %s", config.DBName), "config")
	logger.Info(fmt.Sprintf("Fabric clock: %.3f MHz", config.FabricMHz), "config")
	logger.Info(fmt.Sprintf("Channel: %d", config.Channel), "config")
	logger.Info(fmt.Sprintf("Threshold: %g V", config.Threshold), "config")
	logger.Info(fmt.Sprintf("Dead time: %g s", config.DeadTime), "config")
	logger.Info(fmt.Sprintf("Interpolation bits: %d", config.Interpolation), "config")
	logger.Info(fmt.Sprintf("ADC samples: %d", config.ADCSamples), "config")
	logger.Info(fmt.Sprintf("Sample filter: %t", config.SampleFilter), "config")
	logger.Info(fmt.Sprintf("Slope: %t", config.Slope), "config")
	logger.Info(fmt.Sprintf("Invert: %t", config.Invert), "config")
	logger.Info(fmt.Sprintf("Stride: %d", config.Stride), "config")
	logger.Info(fmt.Sprintf("Stride timeout: %g s", config.StrideTimeout), "config")
	logger.Info(fmt.Sprintf("Reads: %d", config.NumReads), "config")
	logger.Info(fmt.Sprintf("Arms per read: %d", config.ArmsPerRead), "config")
	logger.Info(fmt.Sprintf("Multiples: %d", config.Multiples), "config")
	logger.Info(fmt.Sprintf("Read timeout: %g s", config.ReadTimeout), "config")
	logger.Info(fmt.Sprintf("Experiments: %d", config.NumExperiments), "config")
	logger.Info(fmt.Sprintf("Bins: %d x %g s", config.NumBins, config.BinWidth), "config")
	logger.Info(fmt.Sprintf("Verbosity: %d", config.Verbosity), "config")
}
