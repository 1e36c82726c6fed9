package kafka

// RawTxTopic is the durable transaction stream's topic name.
const RawTxTopic = "raw-transactions"
