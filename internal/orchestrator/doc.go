// Package orchestrator runs hydra's dispatch cycle.
//
// A cycle classifies the task list, retrying the whole classification while
// it yields nothing, then walks each capability-class queue and hands every
// task to a device of that class by position:
//
//	devices[class][i mod len(devices[class])]
//
// Devices are probed with a handshake before their first task. A device that
// does not answer is closed for the rest of the cycle and the tasks routed to
// it are reported as undelivered. Nothing is redelivered automatically.
//
// Example usage:
//
//	orch, err := orchestrator.New(orchestrator.RequiredConfig{
//		Classifier: classifier,
//		Pool:       inventory.Pool,
//		Publisher:  publisher,
//	}, orchestrator.WithHandshaker(transport.ZMQHandshaker{}))
//	report, err := orch.Run(ctx, tasks)
package orchestrator
