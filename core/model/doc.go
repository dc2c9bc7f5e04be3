// Package model holds the value types exchanged between the scheduler, the
// grid operator and local devices: schedules, flexibility corridors,
// publications and charge targets. All times are epoch seconds.
package model
