package clients

// registryABI is the JSON ABI of the property registry contract.
const registryABI = `[
{"type":"function","name":"getAllPropertyIds","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256[]"}]},
{"type":"function","name":"properties","stateMutability":"view","inputs":[{"name":"","type":"uint256"}],"outputs":[
 {"name":"name","type":"string"},
 {"name":"physicalAddress","type":"string"},
 {"name":"area","type":"uint256"},
 {"name":"propertyType","type":"string"},
 {"name":"landlordPhone","type":"string"},
 {"name":"landlord","type":"address"},
 {"name":"status","type":"uint8"},
 {"name":"sharePrice","type":"uint256"},
 {"name":"investmentEndTime","type":"uint256"},
 {"name":"landlordDeposit","type":"uint256"},
 {"name":"totalSharesSold","type":"uint256"},
 {"name":"monthlyRent","type":"uint256"},
 {"name":"rentDeposit","type":"uint256"},
 {"name":"rentStartTime","type":"uint256"},
 {"name":"rentEndTime","type":"uint256"},
 {"name":"tenant","type":"address"},
 {"name":"rightsDuration","type":"uint256"},
 {"name":"rightsStartTime","type":"uint256"},
 {"name":"tenantEndRequestTime","type":"uint256"}]},
{"type":"function","name":"userInfo","stateMutability":"view","inputs":[{"name":"","type":"uint256"},{"name":"","type":"address"}],"outputs":[{"name":"shares","type":"uint256"},{"name":"withdrawnRent","type":"uint256"}]},
{"type":"function","name":"balances","stateMutability":"view","inputs":[{"name":"","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"listProperty","stateMutability":"nonpayable","inputs":[{"name":"_name","type":"string"},{"name":"_physicalAddress","type":"string"},{"name":"_area","type":"uint256"},{"name":"_propertyType","type":"string"},{"name":"_phone","type":"string"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"startInvestment","stateMutability":"payable","inputs":[{"name":"_propertyId","type":"uint256"},{"name":"_sharePrice","type":"uint256"},{"name":"_rightsDurationMonths","type":"uint256"},{"name":"_fundraisingDays","type":"uint256"}],"outputs":[]},
{"type":"function","name":"updatePropertyBasicInfo","stateMutability":"nonpayable","inputs":[{"name":"_propertyId","type":"uint256"},{"name":"_name","type":"string"},{"name":"_physicalAddress","type":"string"},{"name":"_area","type":"uint256"},{"name":"_propertyType","type":"string"},{"name":"_phone","type":"string"}],"outputs":[]},
{"type":"function","name":"finishInvestment","stateMutability":"nonpayable","inputs":[{"name":"_propertyId","type":"uint256"}],"outputs":[]},
{"type":"function","name":"buyShares","stateMutability":"payable","inputs":[{"name":"_propertyId","type":"uint256"},{"name":"_shareAmount","type":"uint256"}],"outputs":[]},
{"type":"function","name":"listForRent","stateMutability":"nonpayable","inputs":[{"name":"_propertyId","type":"uint256"},{"name":"_monthlyRent","type":"uint256"}],"outputs":[]},
{"type":"function","name":"rentProperty","stateMutability":"payable","inputs":[{"name":"_propertyId","type":"uint256"},{"name":"_months","type":"uint256"}],"outputs":[]},
{"type":"function","name":"requestTermination","stateMutability":"nonpayable","inputs":[{"name":"_propertyId","type":"uint256"}],"outputs":[]},
{"type":"function","name":"processSettlement","stateMutability":"nonpayable","inputs":[{"name":"_propertyId","type":"uint256"},{"name":"_returnDeposit","type":"bool"}],"outputs":[]},
{"type":"function","name":"forceTermination","stateMutability":"nonpayable","inputs":[{"name":"_propertyId","type":"uint256"}],"outputs":[]},
{"type":"function","name":"withdrawDeposits","stateMutability":"nonpayable","inputs":[{"name":"_propertyId","type":"uint256"}],"outputs":[]},
{"type":"function","name":"withdraw","stateMutability":"nonpayable","inputs":[{"name":"amount","type":"uint256"}],"outputs":[]},
{"type":"function","name":"burnProperty","stateMutability":"nonpayable","inputs":[{"name":"_propertyId","type":"uint256"}],"outputs":[]}
]`
