// Package connector groups the connector framework used by the engine.
//
//   - core: the SourceReader, DestinationWriter and ConnectionTester contracts.
//   - base: helpers shared by implementations (watermark filtering, previews,
//     schema checks, timing and error wrapping).
//   - registry: maps a type token such as "postgresql" to a reader or writer.
//     Connectors register themselves from init.
//   - sources, destinations: the built-in variants. Importing either package
//     links every variant into the binary.
//   - memory: an in-process dataset connector used for tests and demos.
//
// Connectors are stateless. Each call receives the DataSourceConfig it acts
// on and opens what it needs for the duration of the call.
//
// # Example Usage
//
//	reader, err := registry.ResolveSourceReader("csv")
//	if err != nil {
//	    return err
//	}
//	records, err := reader.Read(ctx, models.DataSourceConfig{
//	    Type:             "csv",
//	    ConnectionString: "/data/orders.csv",
//	}, core.NewWatermark("updated_at", "2024-01-01"))
package connector
