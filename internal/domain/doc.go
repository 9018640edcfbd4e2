// Package domain models Rainbow 5 (RB5) weather-radar captures and the
// merge steps that rebuild complete sweeps and volumes from them.
//
// # Data Source
//
// A Rainbow 5 radar writes one raw file per measured quantity and per scan
// task. Sites ship those files either loose or bundled in a gzip'd tarball per
// task and minute. Each file holds one quantity for one sweep (a "scan") or
// for every elevation of a task (a "volume").
//
// # Naming Conventions
//
// Archive member paths:
//
//	<category>/<site>/<format>/<date>/<YYYYMMDDHHMMSS><VV><quantity>.<scantype>
//	e.g. "rawdata/CASET/Surveillance.vol/2017-06-14/2017061414000300dBZ.vol"
//
//	Positions [0,14) are the capture time, [14,16) the file version, the span
//	up to the first "." the quantity suffix, the rest the scan type.
//	Only "rawdata" members are decoded.
//	A <format> directory that does not end with the scan type names a
//	pre-processed product (PPDF). Quantities from such members are renamed
//	with the PPDF's extension so "dBZ" and "dBZ.ppdf" can share a sweep.
//
// Archive names:
//
//	<site>_<YYYYMMDDHHMM>_<sub-data-format...>.tar.gz
//	e.g. "CASET_201706141400_Surveillance_vol.tar.gz"
//	Merged output lands in
//	<base>/<site>/<YYYY-MM-DD>/<sdf>/<site>.<YYYY-MM-DD>_<HHMM>Z.<sdf>.h5
//
// # Merging
//
// [MergeScan] folds single-quantity sweep fragments into one composite sweep.
// [MergeVolume] does the same per elevation for volume fragments, matching
// sweeps by elevation angle rather than by position and keeping the sweep list
// sorted by elevation after every update. [AggregateScans] stacks composite
// sweeps from separate archives into one volume whose nominal time is the
// first sweep's time floored to the cycle interval.
//
// All times are UTC. Cycle flooring counts from the Unix epoch so results do
// not depend on the host's time zone.
package domain
