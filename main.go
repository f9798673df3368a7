// Copyright 2015 Dorival Pedroso and Raul Durand. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"flag"

	"github.com/cpmech/gosl/chk"
	"github.com/cpmech/gosl/io"

	"github.com/flip3d-sim/flip3d/config"
)

func main() {

	// catch errors
	defer func() {
		if err := recover(); err != nil {
			chk.Verbose = true
			for i := 8; i > 3; i-- {
				chk.CallerInfo(i)
			}
			io.Pfred("ERROR: %v\n", err)
		}
	}()

	// message
	io.PfWhite("\nflip3d -- FLIP/PIC liquid simulation core\n\n")
	io.Pf("Use of this source code is governed by a BSD-style\n")
	io.Pf("license that can be found in the LICENSE file.\n\n")

	// scene filenamepath
	flag.Parse()
	var fnamepath string
	if len(flag.Args()) > 0 {
		fnamepath = flag.Arg(0)
	} else {
		chk.Panic("Please, provide a scene filename. Ex.: dambreak.flip\n")
	}
	if io.FnExt(fnamepath) == "" {
		fnamepath += ".flip"
	}

	// load scene and build the runnable simulation
	scene, err := config.Load(fnamepath)
	if err != nil {
		chk.Panic("%v\n", err)
	}
	fsim := scene.Build()

	io.Pf("grid: %dx%dx%d  h=%v  particles=%d\n", scene.Isize, scene.Jsize, scene.Ksize, scene.H, fsim.Particles.Particles.Len())

	// frame loop
	for frame := 0; frame < scene.Frames; frame++ {
		stats := fsim.Update(scene.FrameDeltaTime)
		io.Pf("frame %4d: %d substeps, %d particles, %d diffuse\n", frame, stats.NumSubsteps, stats.NumParticles, stats.NumDiffuse)
		for _, s := range stats.SolverStatus {
			io.Pfyel("  %s\n", s)
		}
	}
}
