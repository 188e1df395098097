package protocol

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"
)

// field numbers of the Update message
const (
	updateConnector      protowire.Number = 1
	updateEpoch          protowire.Number = 2
	updateAdvertisements protowire.Number = 3
	updateSeqno          protowire.Number = 4
)

// field numbers of the Advertisement message
const (
	advSourceLedger       protowire.Number = 1
	advDestinationLedger  protowire.Number = 2
	advPoints             protowire.Number = 3
	advMinMessageWindow   protowire.Number = 4
	advSourceAccount      protowire.Number = 5
	advDestinationAccount protowire.Number = 6
	advTargetPrefix       protowire.Number = 7
	advAdditionalInfo     protowire.Number = 8
	advAddedDuringEpoch   protowire.Number = 9
	advPaths              protowire.Number = 10
)

// the Path message only has repeated ledgers
const pathLedgers protowire.Number = 1

// schema is update.proto, built from descriptors so that messages can be handled with dynamicpb.
var schema = buildSchema()

var (
	updateDesc        = schema.Messages().ByName("Update")
	advertisementDesc = schema.Messages().ByName("Advertisement")
	pathDesc          = schema.Messages().ByName("Path")
)

func fieldOf(md protoreflect.MessageDescriptor, num protowire.Number) protoreflect.FieldDescriptor {
	fd := md.Fields().ByNumber(num)
	if fd == nil {
		panic(fmt.Sprintf("protocol: %s has no field %d", md.FullName(), num))
	}
	return fd
}

var (
	fUpdateConnector      = fieldOf(updateDesc, updateConnector)
	fUpdateEpoch          = fieldOf(updateDesc, updateEpoch)
	fUpdateAdvertisements = fieldOf(updateDesc, updateAdvertisements)
	fUpdateSeqno          = fieldOf(updateDesc, updateSeqno)

	fAdvSourceLedger       = fieldOf(advertisementDesc, advSourceLedger)
	fAdvDestinationLedger  = fieldOf(advertisementDesc, advDestinationLedger)
	fAdvPoints             = fieldOf(advertisementDesc, advPoints)
	fAdvMinMessageWindow   = fieldOf(advertisementDesc, advMinMessageWindow)
	fAdvSourceAccount      = fieldOf(advertisementDesc, advSourceAccount)
	fAdvDestinationAccount = fieldOf(advertisementDesc, advDestinationAccount)
	fAdvTargetPrefix       = fieldOf(advertisementDesc, advTargetPrefix)
	fAdvAdditionalInfo     = fieldOf(advertisementDesc, advAdditionalInfo)
	fAdvAddedDuringEpoch   = fieldOf(advertisementDesc, advAddedDuringEpoch)
	fAdvPaths              = fieldOf(advertisementDesc, advPaths)

	fPathLedgers = fieldOf(pathDesc, pathLedgers)
)

func buildSchema() protoreflect.FileDescriptor {
	optional := descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL
	repeated := descriptorpb.FieldDescriptorProto_LABEL_REPEATED
	str := descriptorpb.FieldDescriptorProto_TYPE_STRING
	raw := descriptorpb.FieldDescriptorProto_TYPE_BYTES
	u32 := descriptorpb.FieldDescriptorProto_TYPE_UINT32
	u64 := descriptorpb.FieldDescriptorProto_TYPE_UINT64
	msg := descriptorpb.FieldDescriptorProto_TYPE_MESSAGE

	field := func(name string, num protowire.Number, label descriptorpb.FieldDescriptorProto_Label, typ descriptorpb.FieldDescriptorProto_Type, typeName string) *descriptorpb.FieldDescriptorProto {
		f := &descriptorpb.FieldDescriptorProto{
			Name:   proto.String(name),
			Number: proto.Int32(int32(num)),
			Label:  label.Enum(),
			Type:   typ.Enum(),
		}
		if typeName != "" {
			f.TypeName = proto.String(typeName)
		}
		return f
	}

	file := &descriptorpb.FileDescriptorProto{
		Name:    proto.String("ratemesh/update.proto"),
		Package: proto.String("ratemesh"),
		Syntax:  proto.String("proto2"),
		MessageType: []*descriptorpb.DescriptorProto{
			{
				Name: proto.String("Update"),
				Field: []*descriptorpb.FieldDescriptorProto{
					field("connector", updateConnector, optional, str, ""),
					field("epoch", updateEpoch, optional, u64, ""),
					field("advertisements", updateAdvertisements, repeated, msg, ".ratemesh.Advertisement"),
					field("seqno", updateSeqno, optional, u64, ""),
				},
			},
			{
				Name: proto.String("Advertisement"),
				Field: []*descriptorpb.FieldDescriptorProto{
					field("source_ledger", advSourceLedger, optional, str, ""),
					field("destination_ledger", advDestinationLedger, optional, str, ""),
					field("points", advPoints, optional, raw, ""),
					field("min_message_window", advMinMessageWindow, optional, u32, ""),
					field("source_account", advSourceAccount, optional, str, ""),
					field("destination_account", advDestinationAccount, optional, str, ""),
					field("target_prefix", advTargetPrefix, optional, str, ""),
					field("additional_info", advAdditionalInfo, optional, raw, ""),
					field("added_during_epoch", advAddedDuringEpoch, optional, u64, ""),
					field("paths", advPaths, repeated, msg, ".ratemesh.Path"),
				},
			},
			{
				Name: proto.String("Path"),
				Field: []*descriptorpb.FieldDescriptorProto{
					field("ledgers", pathLedgers, repeated, str, ""),
				},
			},
		},
	}
	fd, err := protodesc.NewFile(file, nil)
	if err != nil {
		panic(err)
	}
	return fd
}
