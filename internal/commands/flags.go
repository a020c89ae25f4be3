package commands

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/glimte/nuze-go/contracts"
	"github.com/glimte/nuze-go/messaging"
)

// publicationFlags are the QoS flags shared by publishers and queriers
type publicationFlags struct {
	priority           string
	congestionControl  string
	express            bool
	allowedDestination string
}

func (f *publicationFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.priority, "priority", "", "Priority, 1 (real-time) to 7 (background)")
	fs.StringVar(&f.congestionControl, "congestion-control", "", "Congestion control: 0 (drop) or 1 (block)")
	fs.BoolVar(&f.express, "express", false, "Send without batching")
	fs.StringVar(&f.allowedDestination, "allowed-destination", "", "Allowed destination: any, remote or session-local")
}

func (f *publicationFlags) parse() (priority contracts.Priority, cc contracts.CongestionControl, dest contracts.Locality, err error) {
	if f.priority != "" {
		if priority, err = contracts.ParsePriority(f.priority); err != nil {
			return
		}
	}
	if f.congestionControl != "" {
		if cc, err = contracts.ParseCongestionControl(f.congestionControl); err != nil {
			return
		}
	}
	if f.allowedDestination != "" {
		dest, err = contracts.ParseLocality(f.allowedDestination)
	}
	return
}

// publisherFlags configure pub, put and delete
type publisherFlags struct {
	publicationFlags
	encoding string
	reliable bool
}

func (f *publisherFlags) register(fs *pflag.FlagSet) {
	f.publicationFlags.register(fs)
	fs.StringVar(&f.encoding, "encoding", "", "Payload encoding")
	fs.BoolVar(&f.reliable, "reliable", false, "Use reliable delivery")
}

func (f *publisherFlags) options() (messaging.PublisherOptions, error) {
	priority, cc, dest, err := f.parse()
	if err != nil {
		return messaging.PublisherOptions{}, err
	}
	opts := messaging.PublisherOptions{
		Encoding:           f.encoding,
		Priority:           priority,
		CongestionControl:  cc,
		Express:            f.express,
		AllowedDestination: dest,
	}
	if f.reliable {
		opts.Reliability = contracts.Reliable
	}
	return opts, nil
}

// putFlags add the per-publication fields of put and delete
type putFlags struct {
	publisherFlags
	attachment string
	timestamp  string
}

func (f *putFlags) register(fs *pflag.FlagSet) {
	f.publisherFlags.register(fs)
	fs.StringVar(&f.attachment, "attachment", "", "Attachment sent with the sample")
	fs.StringVar(&f.timestamp, "timestamp", "", "Timestamp as <ZID>/<RFC3339>")
}

func (f *putFlags) options() (messaging.PutOptions, error) {
	pub, err := f.publisherFlags.options()
	if err != nil {
		return messaging.PutOptions{}, err
	}
	opts := messaging.PutOptions{PublisherOptions: pub}
	if f.attachment != "" {
		opts.Attachment = []byte(f.attachment)
	}
	if f.timestamp != "" {
		if opts.Timestamp, err = contracts.ParseTimestamp(f.timestamp); err != nil {
			return messaging.PutOptions{}, err
		}
	}
	return opts, nil
}

// querierFlags configure querier and get
type querierFlags struct {
	publicationFlags
	target        string
	consolidation string
	timeout       time.Duration
}

func (f *querierFlags) register(fs *pflag.FlagSet) {
	f.publicationFlags.register(fs)
	fs.StringVar(&f.target, "target", "", "Query target: all, all-complete or best-matching")
	fs.StringVar(&f.consolidation, "consolidation", "", "Consolidation: auto, latest, monotonic or none")
	fs.DurationVar(&f.timeout, "timeout", 0, "Query timeout")
}

func (f *querierFlags) options() (messaging.QuerierOptions, error) {
	priority, cc, dest, err := f.parse()
	if err != nil {
		return messaging.QuerierOptions{}, err
	}
	opts := messaging.QuerierOptions{
		Timeout:            f.timeout,
		Priority:           priority,
		CongestionControl:  cc,
		Express:            f.express,
		AllowedDestination: dest,
	}
	if f.target != "" {
		if opts.Target, err = contracts.ParseQueryTarget(f.target); err != nil {
			return messaging.QuerierOptions{}, err
		}
	}
	if f.consolidation != "" {
		if opts.Consolidation, err = contracts.ParseConsolidation(f.consolidation); err != nil {
			return messaging.QuerierOptions{}, err
		}
	}
	return opts, nil
}

func parseOrigin(s string) (contracts.Locality, error) {
	if s == "" {
		return contracts.LocalityAny, nil
	}
	l, err := contracts.ParseLocality(s)
	if err != nil {
		return 0, fmt.Errorf("allowed-origin: %w", err)
	}
	return l, nil
}
