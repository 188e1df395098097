package protocol

import (
	"errors"
	"fmt"

	"github.com/encodeous/ratemesh/state"
	"github.com/sugawarayuuta/sonnet"
	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"
)

var ErrMalformedUpdate = errors.New("malformed update")

// Update is a batch of advertisements sent by one connector. Epoch is the routing epoch of the sender
// when the batch was built. Seqno increases with every batch a connector sends, so a replayed batch can
// be recognised.
type Update struct {
	Connector      string
	Epoch          uint64
	Seqno          uint64
	Advertisements []*state.Advertisement
}

var marshalOptions = proto.MarshalOptions{Deterministic: true}

func updateMessage(u *Update) *dynamicpb.Message {
	m := dynamicpb.NewMessage(updateDesc)
	setString(m, fUpdateConnector, u.Connector)
	if u.Epoch != 0 {
		m.Set(fUpdateEpoch, protoreflect.ValueOfUint64(u.Epoch))
	}
	if u.Seqno != 0 {
		m.Set(fUpdateSeqno, protoreflect.ValueOfUint64(u.Seqno))
	}
	return m
}

func advertisementMessage(adv *state.Advertisement) (*dynamicpb.Message, error) {
	if err := state.AdvertisementValidator(adv); err != nil {
		return nil, err
	}
	points, err := adv.Points.MarshalBinary()
	if err != nil {
		return nil, err
	}
	m := dynamicpb.NewMessage(advertisementDesc)
	setString(m, fAdvSourceLedger, adv.SourceLedger)
	setString(m, fAdvDestinationLedger, adv.DestinationLedger)
	m.Set(fAdvPoints, protoreflect.ValueOfBytes(points))
	if adv.MinMessageWindow != 0 {
		m.Set(fAdvMinMessageWindow, protoreflect.ValueOfUint32(adv.MinMessageWindow))
	}
	setString(m, fAdvSourceAccount, adv.SourceAccount)
	setString(m, fAdvDestinationAccount, adv.DestinationAccount)
	setString(m, fAdvTargetPrefix, adv.TargetPrefix)
	if len(adv.AdditionalInfo) != 0 {
		info, err := sonnet.Marshal(adv.AdditionalInfo)
		if err != nil {
			return nil, fmt.Errorf("failed to encode additional_info: %w", err)
		}
		m.Set(fAdvAdditionalInfo, protoreflect.ValueOfBytes(info))
	}
	if adv.AddedDuringEpoch != 0 {
		m.Set(fAdvAddedDuringEpoch, protoreflect.ValueOfUint64(adv.AddedDuringEpoch))
	}
	paths := m.Mutable(fAdvPaths).List()
	for _, path := range adv.Paths {
		p := dynamicpb.NewMessage(pathDesc)
		ledgers := p.Mutable(fPathLedgers).List()
		for _, ledger := range path {
			ledgers.Append(protoreflect.ValueOfString(ledger))
		}
		paths.Append(protoreflect.ValueOfMessage(p))
	}
	return m, nil
}

func setString(m *dynamicpb.Message, fd protoreflect.FieldDescriptor, s string) {
	if s != "" {
		m.Set(fd, protoreflect.ValueOfString(s))
	}
}

func EncodeUpdate(u *Update) ([]byte, error) {
	m := updateMessage(u)
	advs := m.Mutable(fUpdateAdvertisements).List()
	for _, adv := range u.Advertisements {
		am, err := advertisementMessage(adv)
		if err != nil {
			return nil, err
		}
		advs.Append(protoreflect.ValueOfMessage(am))
	}
	return marshalOptions.Marshal(m)
}

func DecodeUpdate(b []byte) (*Update, error) {
	if len(b) > state.MaxUpdateSize {
		return nil, fmt.Errorf("%w: %d bytes exceeds the limit of %d", ErrMalformedUpdate, len(b), state.MaxUpdateSize)
	}
	m := dynamicpb.NewMessage(updateDesc)
	if err := proto.Unmarshal(b, m); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedUpdate, err)
	}
	if err := checkWireTypes(m); err != nil {
		return nil, err
	}
	u := &Update{
		Connector: m.Get(fUpdateConnector).String(),
		Epoch:     m.Get(fUpdateEpoch).Uint(),
		Seqno:     m.Get(fUpdateSeqno).Uint(),
	}
	advs := m.Get(fUpdateAdvertisements).List()
	for i := range advs.Len() {
		adv, err := decodeAdvertisement(advs.Get(i).Message())
		if err != nil {
			return nil, fmt.Errorf("advertisement %d: %w", i, err)
		}
		u.Advertisements = append(u.Advertisements, adv)
	}
	return u, nil
}

// checkWireTypes rejects known fields that arrived with the wrong wire type. proto.Unmarshal keeps
// those as unknown fields, which would otherwise drop them silently.
func checkWireTypes(m protoreflect.Message) error {
	fields := m.Descriptor().Fields()
	for b := m.GetUnknown(); len(b) > 0; {
		num, typ, n := protowire.ConsumeField(b)
		if n < 0 {
			return fmt.Errorf("%w: %w", ErrMalformedUpdate, protowire.ParseError(n))
		}
		if fd := fields.ByNumber(num); fd != nil {
			return fmt.Errorf("%w: field %s has wire type %d", ErrMalformedUpdate, fd.Name(), typ)
		}
		b = b[n:]
	}
	var err error
	m.Range(func(fd protoreflect.FieldDescriptor, v protoreflect.Value) bool {
		if fd.Message() == nil || !fd.IsList() {
			return true
		}
		list := v.List()
		for i := range list.Len() {
			if err = checkWireTypes(list.Get(i).Message()); err != nil {
				return false
			}
		}
		return true
	})
	return err
}

func decodeAdvertisement(m protoreflect.Message) (*state.Advertisement, error) {
	adv := &state.Advertisement{
		SourceLedger:       m.Get(fAdvSourceLedger).String(),
		DestinationLedger:  m.Get(fAdvDestinationLedger).String(),
		MinMessageWindow:   uint32(m.Get(fAdvMinMessageWindow).Uint()),
		SourceAccount:      m.Get(fAdvSourceAccount).String(),
		DestinationAccount: m.Get(fAdvDestinationAccount).String(),
		TargetPrefix:       m.Get(fAdvTargetPrefix).String(),
		AddedDuringEpoch:   m.Get(fAdvAddedDuringEpoch).Uint(),
	}
	if m.Has(fAdvPoints) {
		curve, err := state.ParseLiquidityCurve(m.Get(fAdvPoints).Bytes())
		if err != nil {
			return nil, err
		}
		adv.Points = curve
	}
	if m.Has(fAdvAdditionalInfo) {
		if err := sonnet.Unmarshal(m.Get(fAdvAdditionalInfo).Bytes(), &adv.AdditionalInfo); err != nil {
			return nil, fmt.Errorf("%w: additional_info: %w", ErrMalformedUpdate, err)
		}
	}
	paths := m.Get(fAdvPaths).List()
	for i := range paths.Len() {
		ledgers := paths.Get(i).Message().Get(fPathLedgers).List()
		path := make([]string, 0, ledgers.Len())
		for j := range ledgers.Len() {
			path = append(path, ledgers.Get(j).String())
		}
		adv.Paths = append(adv.Paths, path)
	}
	if err := state.AdvertisementValidator(adv); err != nil {
		return nil, err
	}
	return adv, nil
}

// SplitUpdates encodes the advertisements of u into as few updates as possible while keeping each below
// maxSize bytes. The batches are numbered from u.Seqno onwards. A single advertisement larger than maxSize
// is an error.
func SplitUpdates(u *Update, maxSize int) ([][]byte, error) {
	header := func(seqno uint64) (*dynamicpb.Message, int) {
		m := updateMessage(&Update{Connector: u.Connector, Epoch: u.Epoch, Seqno: seqno})
		return m, proto.Size(m)
	}
	var out [][]byte
	flush := func(batch *dynamicpb.Message) error {
		data, err := marshalOptions.Marshal(batch)
		if err != nil {
			return err
		}
		out = append(out, data)
		return nil
	}

	batch, size := header(u.Seqno)
	count := 0
	for i, adv := range u.Advertisements {
		am, err := advertisementMessage(adv)
		if err != nil {
			return nil, fmt.Errorf("advertisement %d: %w", i, err)
		}
		n := protowire.SizeTag(updateAdvertisements) + protowire.SizeBytes(proto.Size(am))
		if count > 0 && size+n > maxSize {
			if err := flush(batch); err != nil {
				return nil, err
			}
			batch, size = header(u.Seqno + uint64(len(out)))
			count = 0
		}
		if size+n > maxSize {
			return nil, fmt.Errorf("advertisement %d: %d bytes does not fit in an update of %d bytes", i, n, maxSize)
		}
		batch.Mutable(fUpdateAdvertisements).List().Append(protoreflect.ValueOfMessage(am))
		size += n
		count++
	}
	if count > 0 {
		if err := flush(batch); err != nil {
			return nil, err
		}
	}
	return out, nil
}
