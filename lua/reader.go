package lua

import (
	"fmt"

	"github.com/yuin/gluamapper"
	lua "github.com/yuin/gopher-lua"

	"github.com/samaelod/flowmap/types"
)

// ReadDataset runs a Lua dataset script. The script returns a table with
// snake_case keys mirroring types.Dataset:
//
//	return {
//	  timelines = { { id = "tcp-10.0.0.1-40000-10.0.0.2-80", protocol_type = "tcp-handshake" } },
//	  packets = { { connection_id = "tcp-10.0.0.1-40000-10.0.0.2-80", index = 1, timestamp = 0.5 } },
//	}
func ReadDataset(path string) (*types.Dataset, error) {
	L := lua.NewState()
	defer L.Close()

	// Execute Lua file
	if err := L.DoFile(path); err != nil {
		return nil, err
	}

	// Lua file returns dataset table
	lv := L.Get(-1)
	table, ok := lv.(*lua.LTable)
	if !ok {
		return nil, fmt.Errorf("lua file did not return a table")
	}

	var ds types.Dataset

	// Map Lua table → Go struct
	if err := gluamapper.Map(table, &ds); err != nil {
		return nil, err
	}

	if err := ValidateDataset(&ds); err != nil {
		return nil, fmt.Errorf("invalid dataset: %w", err)
	}

	ds.IndexPackets()

	return &ds, nil
}

// ValidateDataset checks that timeline ids are present and that every
// packet belongs to a declared timeline.
func ValidateDataset(ds *types.Dataset) error {
	timelines := make(map[string]bool)

	for i, tl := range ds.Timelines {
		if tl.ID == "" {
			return fmt.Errorf("timeline %d: missing id", i)
		}
		timelines[tl.ID] = true
	}

	for i, p := range ds.Packets {
		if !timelines[p.ConnectionID] {
			return fmt.Errorf("packet %d: unknown connection id %q", i, p.ConnectionID)
		}
	}

	return nil
}
