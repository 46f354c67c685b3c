// internal/models/ptr.go
package models

import "time"

func IntPtr(v int) *int                  { return &v }
func FloatPtr(v float64) *float64        { return &v }
func TimePtr(v time.Time) *time.Time     { return &v }
func StringPtr(s string) *string         { return &s }
func StatusPtr(s TaskStatus) *TaskStatus { return &s }
