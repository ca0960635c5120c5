package store

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/omochice/room-chat-client/internal/chat"
)

// codecVersion is written into every slot so the layout can evolve.
const codecVersion = 1

// encodeEvents serialises the whole sequence as a protobuf Struct:
// {"version": 1, "events": [{"kind", "username", "content", "timestamp"}]}.
// Timestamps are RFC 3339 with nanoseconds so the round trip is exact.
func encodeEvents(events []chat.Event) ([]byte, error) {
	items := make([]*structpb.Value, 0, len(events))
	for _, ev := range events {
		fields := map[string]*structpb.Value{
			"kind":      structpb.NewStringValue(ev.Kind.String()),
			"content":   structpb.NewStringValue(ev.Content),
			"timestamp": structpb.NewStringValue(ev.Timestamp.UTC().Format(time.RFC3339Nano)),
		}
		if ev.Kind == chat.KindChat {
			fields["username"] = structpb.NewStringValue(ev.Username)
		}
		items = append(items, structpb.NewStructValue(&structpb.Struct{Fields: fields}))
	}

	doc := &structpb.Struct{Fields: map[string]*structpb.Value{
		"version": structpb.NewNumberValue(codecVersion),
		"events":  structpb.NewListValue(&structpb.ListValue{Values: items}),
	}}
	data, err := proto.MarshalOptions{Deterministic: true}.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode events: %w", err)
	}
	return data, nil
}

func decodeEvents(data []byte) ([]chat.Event, error) {
	var doc structpb.Struct
	if err := proto.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode events: %w", err)
	}
	if v := doc.GetFields()["version"].GetNumberValue(); v != codecVersion {
		return nil, fmt.Errorf("unsupported slot version %v", v)
	}

	list := doc.GetFields()["events"].GetListValue()
	events := make([]chat.Event, 0, len(list.GetValues()))
	for i, item := range list.GetValues() {
		fields := item.GetStructValue().GetFields()
		if fields == nil {
			return nil, fmt.Errorf("event %d is not an object", i)
		}
		kind, err := chat.ParseEventKind(fields["kind"].GetStringValue())
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
		ts, err := time.Parse(time.RFC3339Nano, fields["timestamp"].GetStringValue())
		if err != nil {
			return nil, fmt.Errorf("event %d: bad timestamp: %w", i, err)
		}
		events = append(events, chat.Event{
			Kind:      kind,
			Username:  fields["username"].GetStringValue(),
			Content:   fields["content"].GetStringValue(),
			Timestamp: ts.UTC(),
		})
	}
	return events, nil
}
