package config

import (
	"github.com/glimte/nuze-go/serialization"
)

// Record renders the named session with the process-wide settings
func (c *Config) Record(name string) (serialization.Record, error) {
	s, err := c.Session(name)
	if err != nil {
		return nil, err
	}
	file := c.File
	if file == "" {
		file = "(defaults)"
	}
	return serialization.Record{
		{Key: "session", Value: s.Name},
		{Key: "transport", Value: s.Transport},
		{Key: "url", Value: s.URL},
		{Key: "mode", Value: string(s.Mode)},
		{Key: "query_timeout", Value: s.QueryTimeout.String()},
		{Key: "scouting_interval", Value: s.Scouting.Interval.String()},
		{Key: "scouting_timeout", Value: s.Scouting.Timeout.String()},
		{Key: "channel_capacity", Value: c.Channel.Capacity},
		{Key: "poll_granularity", Value: c.Poll.Granularity.String()},
		{Key: "file", Value: file},
	}, nil
}
