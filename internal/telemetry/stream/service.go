// Package stream carries telemetry lines over a gRPC server-streaming call.
//
// The service has one method, rangereport.telemetry.v1.Telemetry/Subscribe.
// The request is a StringValue holding the topic prefix; each response is a
// StringValue holding one frame line. Well-known wrapper types keep the
// service free of generated code.
package stream

import (
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	ServiceName     = "rangereport.telemetry.v1.Telemetry"
	subscribeMethod = "/" + ServiceName + "/Subscribe"
)

// TelemetryServer is the server API for the Telemetry service.
type TelemetryServer interface {
	Subscribe(*wrapperspb.StringValue, grpc.ServerStreamingServer[wrapperspb.StringValue]) error
}

func subscribeHandler(srv interface{}, stream grpc.ServerStream) error {
	m := new(wrapperspb.StringValue)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(TelemetryServer).Subscribe(m, &grpc.GenericServerStream[wrapperspb.StringValue, wrapperspb.StringValue]{ServerStream: stream})
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*TelemetryServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Subscribe",
			Handler:       subscribeHandler,
			ServerStreams: true,
		},
	},
	Metadata: "rangereport/telemetry/v1/telemetry.proto",
}

// RegisterTelemetryServer registers srv on s.
func RegisterTelemetryServer(s grpc.ServiceRegistrar, srv TelemetryServer) {
	s.RegisterService(&serviceDesc, srv)
}
