package notary

// contractABI covers the parts of the ComplaintVerifier contract this
// service calls.
const contractABI = `[
  {
    "inputs": [
      {"internalType": "string", "name": "usn", "type": "string"},
      {"internalType": "string", "name": "activityId", "type": "string"},
      {"internalType": "uint256", "name": "points", "type": "uint256"},
      {"internalType": "string", "name": "complaintId", "type": "string"},
      {"internalType": "string", "name": "imageHash", "type": "string"},
      {"internalType": "string", "name": "title", "type": "string"},
      {"internalType": "string", "name": "description", "type": "string"}
    ],
    "name": "approveComplaint",
    "outputs": [],
    "stateMutability": "nonpayable",
    "type": "function"
  },
  {
    "inputs": [{"internalType": "string", "name": "", "type": "string"}],
    "name": "complaints",
    "outputs": [
      {"internalType": "string", "name": "usn", "type": "string"},
      {"internalType": "string", "name": "activityId", "type": "string"},
      {"internalType": "uint256", "name": "points", "type": "uint256"},
      {"internalType": "string", "name": "complaintId", "type": "string"},
      {"internalType": "string", "name": "imageHash", "type": "string"},
      {"internalType": "string", "name": "title", "type": "string"},
      {"internalType": "string", "name": "description", "type": "string"},
      {"internalType": "uint256", "name": "timestamp", "type": "uint256"},
      {"internalType": "address", "name": "verifiedBy", "type": "address"}
    ],
    "stateMutability": "view",
    "type": "function"
  }
]`
