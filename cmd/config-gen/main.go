// A simple utility for generating the config files hashfinder reads.
//
// When run from the root directory, this utility writes config/finder_config.json
// and config/tracing_server_config.json, creating them from defaults if they do
// not exist yet. The tracing server is bound to a pseudo-randomly selected local
// port (above 1024) and the finder config is pointed at it, to (try and) avoid
// port collisions on shared machines.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/DistributedClocks/tracing"

	hashfinder "example.org/hashfinder"
)

func genPort(r *rand.Rand) int32 {
	return r.Int31n(35535-1024) + 1024
}

// updateConfig loads path into config if the file exists, applies updateFn
// and writes the result back.
func updateConfig(path string, config interface{}, updateFn func()) error {
	err := hashfinder.ReadJSONConfig(path, config)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("read %s: %w", path, err)
	}
	updateFn()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	fileWrite, err := os.Create(path)
	if err != nil {
		return err
	}
	defer fileWrite.Close()
	encoder := json.NewEncoder(fileWrite)
	encoder.SetIndent("", "\t")
	return encoder.Encode(config)
}

func main() {
	dir := flag.String("dir", "config", "directory to write config files into")
	withTracing := flag.Bool("tracing", true, "bind a tracing server and point the finder at it")
	seed := flag.Int64("seed", 0, "port seed, 0 picks one")
	flag.Parse()

	if err := generate(*dir, *withTracing, *seed); err != nil {
		log.Fatal(err)
	}
}

func generate(dir string, withTracing bool, seed int64) error {
	if seed == 0 {
		seed = rand.Int63()
	}
	r := rand.New(rand.NewSource(seed))

	traceServerAddr := ""
	if withTracing {
		traceServerAddr = fmt.Sprintf(":%v", genPort(r))
		traceServerConfig := &tracing.TracingServerConfig{}
		err := updateConfig(filepath.Join(dir, "tracing_server_config.json"), traceServerConfig, func() {
			traceServerConfig.ServerBind = traceServerAddr
		})
		if err != nil {
			return err
		}
	}

	finderConfig := hashfinder.DefaultFinderConfig()
	return updateConfig(filepath.Join(dir, "finder_config.json"), &finderConfig, func() {
		finderConfig.TracerServerAddr = traceServerAddr
	})
}
