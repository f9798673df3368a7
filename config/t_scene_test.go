// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cpmech/gosl/chk"
)

const sampleScene = `{
	"isize": 8, "jsize": 8, "ksize": 8, "h": 0.1,
	"frames": 2, "frameDeltaTime": 0.04,
	"density": 1000, "cfl": 5,
	"fluidSeed": {"min": [0.1, 0.1, 0.1], "max": [0.5, 0.4, 0.5]},
	"fluidParticlesPerCell": 4,
	"obstacles": [
		{"box": {"min": [0, 0, 0], "max": [0.8, 0.1, 0.8]}, "friction": 0.2}
	],
	"sources": [
		{"box": {"min": [0.2, 0.6, 0.2], "max": [0.3, 0.7, 0.3]}, "startFrame": 1, "endFrame": -1, "velocity": [0, -1, 0], "particlesPerCell": 2}
	]
}`

func Test_scene01(tst *testing.T) {
	chk.PrintTitle("scene01")

	dir := tst.TempDir()
	path := filepath.Join(dir, "scene.flip")
	if err := os.WriteFile(path, []byte(sampleScene), 0644); err != nil {
		tst.Fatal(err)
	}

	scene, err := Load(path)
	if err != nil {
		tst.Fatal(err)
	}
	if scene.MaxSubsteps != 12 {
		tst.Fatalf("expected default MaxSubsteps=12, got %d", scene.MaxSubsteps)
	}
	if scene.PressureMaxIterations != 200 {
		tst.Fatalf("expected default PressureMaxIterations=200, got %d", scene.PressureMaxIterations)
	}
	if scene.Gravity != ([3]float64{0, -9.81, 0}) {
		tst.Fatalf("expected default gravity, got %v", scene.Gravity)
	}
}

func Test_scene02(tst *testing.T) {
	chk.PrintTitle("scene02")

	dir := tst.TempDir()
	path := filepath.Join(dir, "bad.flip")
	if err := os.WriteFile(path, []byte(`{"h": 0.1}`), 0644); err != nil {
		tst.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		tst.Fatal("expected an error for a scene with no grid dimensions")
	}
}

func Test_scene03(tst *testing.T) {
	chk.PrintTitle("scene03")

	dir := tst.TempDir()
	path := filepath.Join(dir, "scene.flip")
	if err := os.WriteFile(path, []byte(sampleScene), 0644); err != nil {
		tst.Fatal(err)
	}

	scene, err := Load(path)
	if err != nil {
		tst.Fatal(err)
	}
	fsim := scene.Build()

	if n := fsim.Particles.Particles.Len(); n == 0 {
		tst.Fatal("expected the fluid seed box to produce marker particles")
	}
	if n := len(fsim.MeshObjects()); n != 1 {
		tst.Fatalf("expected 1 registered obstacle, got %d", n)
	}
	if !fsim.IsInitialized() {
		tst.Fatal("expected Build to initialize the simulation")
	}
}
