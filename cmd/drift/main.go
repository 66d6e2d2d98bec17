/*
Copyright © 2018 the OceanDrift authors.
This file is part of OceanDrift.

OceanDrift is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

OceanDrift is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with OceanDrift.  If not, see <http://www.gnu.org/licenses/>.
*/

// drift is a command-line interface for the drift particle
// advection model.
package main

import (
	"os"

	"github.com/oceandrift/drift/driftutil"
)

func main() {
	if err := driftutil.Root.Execute(); err != nil {
		os.Exit(1)
	}
}
